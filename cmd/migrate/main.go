package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"finance-assistant/internal/config"
	"finance-assistant/internal/db"
	"finance-assistant/internal/logger"
)

func main() {
	down := flag.Bool("down", false, "revert every applied migration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "error", Format: "console"}).Fatal("config", zap.Error(err))
	}
	log := logger.New(logger.ForEnvironment(cfg.Environment, cfg.LogLevel))
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	if *down {
		err = db.MigrateDown(cfg.DatabaseURL, log)
	} else {
		err = db.Migrate(cfg.DatabaseURL, log)
	}
	if err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
}
