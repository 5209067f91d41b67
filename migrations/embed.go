// Package migrations embeds the SQL schema applied by golang-migrate.
// Statements stay within the subset shared by postgres and sqlite.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
