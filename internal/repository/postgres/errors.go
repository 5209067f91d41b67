package postgres

import (
	"database/sql"

	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// isUniqueViolation reports whether err is a unique constraint violation on either driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if ierr.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if ierr.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isNoRows(err error) bool {
	return ierr.Is(err, sql.ErrNoRows)
}

func dbError(err error, hint string) error {
	return ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrDatabase)
}
