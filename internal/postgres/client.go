package postgres

import (
	"context"

	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	sentryService "github.com/flexprice/couponengine/internal/sentry"
	"go.uber.org/fx"
)

// IClient defines the interface for postgres client operations
type IClient interface {
	// WithTx wraps the given function in a transaction. Calls nested inside an
	// open transaction run in a savepoint.
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

// Module provides an fx.Option wiring the database, its migrations and the tx client
func Module() fx.Option {
	return fx.Options(
		fx.Provide(
			NewMigratedDB,
			NewClient,
		),
	)
}

// NewMigratedDB opens the database and applies the embedded migrations when
// postgres.auto_migrate is set
func NewMigratedDB(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (*DB, error) {
	db, err := NewDB(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Postgres.AutoMigrate {
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			db.Close()
			return nil
		},
	})
	return db, nil
}

// NewClient returns the transactional client used by services, instrumented with sentry spans
func NewClient(db *DB, sentry *sentryService.Service, log *logger.Logger) IClient {
	return NewSentryClient(db, sentry, log)
}
