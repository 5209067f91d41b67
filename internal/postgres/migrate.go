package postgres

import (
	"errors"
	"fmt"

	"github.com/flexprice/couponengine/migrations"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate applies every pending embedded migration to db
func Migrate(db *DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	var m *migrate.Migrate
	if db.IsSQLite() {
		// reuse the open handle, an in-memory database is private to its connection.
		// The migrator is left open since closing it closes db.
		driver, err := migratesqlite.WithInstance(db.DB.DB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("create migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", source, DriverSQLite, driver)
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
	} else {
		m, err = migrate.NewWithSourceInstance("iofs", source, db.cfg.GetURL())
		if err != nil {
			return fmt.Errorf("create migrate instance: %w", err)
		}
		defer m.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	db.logger.Infow("migrations applied",
		"driver", db.DriverName(),
		"version", version,
		"dirty", dirty,
	)
	return nil
}
