// Command scheduler runs one stale-refresh pass over the catalog and
// exits. Intended to run from cron.
package main

import (
	"context"
	"os"
	"time"

	"github.com/sena168/aicenghub/internal/config"
	"github.com/sena168/aicenghub/internal/database"
	"github.com/sena168/aicenghub/internal/logging"
	"github.com/sena168/aicenghub/internal/repository"
	"github.com/sena168/aicenghub/internal/scheduler"
	"github.com/sena168/aicenghub/internal/version"
)

func main() {
	logger := logging.SetDefault()

	info := version.Get()
	logger.Info("starting aicenghub scheduler", "version", info.Version, "commit", info.Commit)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := repository.EnsureSchema(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	repos := repository.New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := scheduler.New(repos.Queue, cfg.StaleHours, cfg.SchedulerBatchSize, logger)
	if _, err := s.Run(ctx); err != nil {
		os.Exit(1)
	}
}
