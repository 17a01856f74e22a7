// Command linksadmin runs the operator maintenance passes that have no
// HTTP surface: merging pending candidates into the catalog, refreshing
// derived pricing tiers, and inspecting the rolling backup state.
//
// Usage:
//
//	linksadmin merge
//	linksadmin refresh-tiers
//	linksadmin backup-status
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sena168/aicenghub/internal/config"
	"github.com/sena168/aicenghub/internal/database"
	"github.com/sena168/aicenghub/internal/logging"
	"github.com/sena168/aicenghub/internal/repository"
)

func main() {
	logger := logging.SetDefault()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: linksadmin <merge|refresh-tiers|backup-status>")
		os.Exit(2)
	}
	command := os.Args[1]

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch command {
	case "merge":
		result, err := repos.Links.MergePendingCandidates(ctx)
		if err != nil {
			logger.Error("merge failed", "error", err)
			os.Exit(1)
		}
		logger.Info("merge complete",
			"merged", result.Merged,
			"rejected", result.Rejected,
			"backup_slot", result.BackupSlot,
		)
	case "refresh-tiers":
		updated, err := repos.Links.RefreshMainPricingTiers(ctx)
		if err != nil {
			logger.Error("tier refresh failed", "error", err)
			os.Exit(1)
		}
		logger.Info("tier refresh complete", "updated", updated)
	case "backup-status":
		slot, createdAt, err := repos.Links.LatestBackupSlot(ctx)
		if err != nil {
			logger.Error("backup status failed", "error", err)
			os.Exit(1)
		}
		if slot == 0 {
			logger.Info("no backups written yet")
			return
		}
		logger.Info("latest backup", "slot", slot, "created_at", createdAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		os.Exit(2)
	}
}
