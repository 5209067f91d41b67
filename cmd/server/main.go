package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flexprice/couponengine/internal/api"
	v1 "github.com/flexprice/couponengine/internal/api/v1"
	"github.com/flexprice/couponengine/internal/cache"
	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/publisher"
	"github.com/flexprice/couponengine/internal/repository"
	"github.com/flexprice/couponengine/internal/sentry"
	"github.com/flexprice/couponengine/internal/service"
	"github.com/flexprice/couponengine/internal/validator"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Cache
			provideCache,

			// Event transport and publisher
			publisher.NewPubSub,
			publisher.NewEventPublisher,
		),
		fx.Invoke(validator.NewValidator),
		sentry.Module(),
		postgres.Module(),
		repository.Module(),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewServiceParams,
			service.NewCouponService,
			service.NewEngineerService,
			service.NewReconciliationService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(
			registerPublisherHooks,
			startServer,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache(cfg *config.Configuration) cache.Cache {
	return cache.NewInMemoryCache(cfg)
}

func provideHandlers(
	db *postgres.DB,
	logger *logger.Logger,
	couponService service.CouponService,
	engineerService service.EngineerService,
	reconciliationService service.ReconciliationService,
) api.Handlers {
	return api.Handlers{
		Health:         v1.NewHealthHandler(db, logger),
		Coupon:         v1.NewCouponHandler(couponService, logger),
		Engineer:       v1.NewEngineerHandler(engineerService, logger),
		Reconciliation: v1.NewReconciliationHandler(reconciliationService, logger),
	}
}

func registerPublisherHooks(lc fx.Lifecycle, eventPublisher publisher.EventPublisher, logger *logger.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing event publisher")
			return eventPublisher.Close()
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *gin.Engine,
	logger *logger.Logger,
) {
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting API server...")
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatalf("failed to start server: %v", err)
				}
			}()
			logger.Infow("API server started", "address", cfg.Server.Address)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}
