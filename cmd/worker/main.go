// Command worker runs the background enrichment loop against the
// scrape queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sena168/aicenghub/internal/config"
	"github.com/sena168/aicenghub/internal/database"
	"github.com/sena168/aicenghub/internal/logging"
	"github.com/sena168/aicenghub/internal/repository"
	"github.com/sena168/aicenghub/internal/tools"
	"github.com/sena168/aicenghub/internal/version"
	"github.com/sena168/aicenghub/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	info := version.Get()
	logger.Info("starting aicenghub worker", "version", info.Version, "commit", info.Commit)

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

	toolsClient := tools.New(cfg.ToolsBaseURL, cfg.ToolsAPIKey, cfg.ToolsTimeout)

	w := worker.New(repos.Queue, repos.Links, toolsClient, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		MaxAttempts:  cfg.WorkerMaxAttempts,
		BackoffBase:  cfg.WorkerBackoffBase,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	logger.Info("shutting down worker")
	cancel()
	w.Stop()
}
