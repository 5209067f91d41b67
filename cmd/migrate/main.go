package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/flexprice/couponengine/internal/config"
	"github.com/flexprice/couponengine/internal/logger"
	"github.com/flexprice/couponengine/internal/postgres"
)

func main() {
	dsn := flag.String("dsn", "", "Override the configured database connection string")
	flag.Parse()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dsn != "" {
		cfg.Postgres.DSN = *dsn
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "driver", cfg.Postgres.Driver, "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := postgres.Migrate(db); err != nil {
		logger.Fatalw("Failed to apply migrations", "error", err)
	}

	fmt.Println("Migration process completed")
}
