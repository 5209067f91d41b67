package postgres

import (
	"context"
	"time"

	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DB wraps sqlx.DB to provide transaction management
type DB struct {
	*sqlx.DB
	logger *logger.Logger
	cfg    config.PostgresConfig
}

// Querier is the subset of sqlx both *sqlx.DB and *sqlx.Tx satisfy.
// Repositories pass it to sqlx.GetContext, sqlx.SelectContext and sqlx.NamedExecContext
// and write their statements with ? placeholders rebound through Rebind.
type Querier interface {
	sqlx.ExtContext
}

// NewDB opens the configured database and applies the pool settings
func NewDB(cfg *config.Configuration, logger *logger.Logger) (*DB, error) {
	driver := cfg.Postgres.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	db, err := sqlx.Connect(driver, cfg.Postgres.GetDSN())
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// an in-memory sqlite database lives and dies with its single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetimeMinutes) * time.Minute)
	}

	return &DB{DB: db, logger: logger, cfg: cfg.Postgres}, nil
}

// NewFromSQLX wraps an already opened connection, used by tests
func NewFromSQLX(db *sqlx.DB, logger *logger.Logger) *DB {
	return &DB{DB: db, logger: logger, cfg: config.PostgresConfig{Driver: db.DriverName()}}
}

// Close closes the database connection
func (db *DB) Close() {
	if err := db.DB.Close(); err != nil {
		db.logger.Errorw("error closing database", "error", err)
	}
}

// GetQuerier returns either the transaction from context or the base DB
func (db *DB) GetQuerier(ctx context.Context) Querier {
	if tx, ok := GetTx(ctx); ok {
		return NewTracedQuerier(tx.Tx, db.logger, tx.ID)
	}
	return NewTracedQuerier(db.DB, db.logger, "")
}

// IsSQLite reports whether the connection uses the sqlite3 driver
func (db *DB) IsSQLite() bool {
	return db.DriverName() == DriverSQLite
}
