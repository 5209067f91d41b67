package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flexprice/couponengine/internal/cache"
	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
	"github.com/flexprice/couponengine/internal/publisher"
	repo "github.com/flexprice/couponengine/internal/repository/postgres"
	"github.com/flexprice/couponengine/internal/sentry"
	"github.com/flexprice/couponengine/internal/service"
	"github.com/flexprice/couponengine/internal/types"
)

func init() {
	time.Local = time.UTC
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Compute the corrections without writing anything")
	flag.Parse()

	os.Exit(run(*dryRun))
}

func run(dryRun bool) int {
	cfg, err := config.NewConfig()
	if err != nil {
		logger.L.Errorw("failed to load config", "error", err)
		return 1
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	sentrySvc := sentry.NewSentryService(cfg, logger)
	if err := sentrySvc.Init(); err != nil {
		logger.Errorw("failed to initialize sentry", "error", err)
	}
	defer sentrySvc.Flush(2)

	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Errorw("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(db); err != nil {
			logger.Errorw("failed to apply migrations", "error", err)
			return 1
		}
	}

	pubSub, err := publisher.NewPubSub(cfg, logger)
	if err != nil {
		logger.Errorw("failed to create event transport", "error", err)
		return 1
	}
	eventPublisher := publisher.NewEventPublisher(pubSub, cfg, logger)
	defer eventPublisher.Close()

	params := service.NewServiceParams(
		logger,
		cfg,
		postgres.NewClient(db, sentrySvc, logger),
		cache.NewInMemoryCache(cfg),
		sentrySvc,
		repo.NewCouponRepository(db, logger),
		repo.NewOrderRepository(db, logger),
		repo.NewEngineerRepository(db, logger),
		repo.NewReconciliationRepository(db, logger),
		repo.NewLockRepository(db, logger),
		eventPublisher,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = types.SetRequestID(ctx, types.GenerateUUIDWithPrefix("req"))

	report, err := service.NewReconciliationService(params).Run(ctx, service.ReconciliationOptions{DryRun: dryRun})
	if err != nil {
		logger.Errorw("reconciliation failed", "error", err)
		sentrySvc.CaptureException(err)
		return 1
	}

	if err := report.Render(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "failed to render report: %v\n", err)
		return 1
	}

	if report.HasFailures() {
		logger.Warnw("reconciliation finished with ledger failures",
			"run_id", report.Run.ID,
			"engineers_failed", report.Run.EngineersFailed,
		)
		return 1
	}
	return 0
}
