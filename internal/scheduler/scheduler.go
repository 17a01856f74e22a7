// Package scheduler enqueues stale-refresh jobs for catalog entries
// whose last check is old. Designed as a one-shot pass driven by cron.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
)

// Stale-hours bounds. A zero configured value means each run picks a
// uniform random value in the range, spreading refresh load.
const (
	minStaleHours = 24
	maxStaleHours = 72

	defaultBatchSize = 200
	maxBatchSize     = 5000
)

// Queue is the enqueue surface the scheduler needs.
type Queue interface {
	EnqueueStaleRefresh(ctx context.Context, staleHours, limit int) (int64, error)
}

// Scheduler runs the stale-refresh pass.
type Scheduler struct {
	queue      Queue
	staleHours int
	batchSize  int
	logger     *slog.Logger
}

// New creates a scheduler. staleHours 0 selects a random horizon per
// run; out-of-range values are clamped.
func New(queue Queue, staleHours, batchSize int, logger *slog.Logger) *Scheduler {
	if staleHours != 0 {
		if staleHours < minStaleHours {
			staleHours = minStaleHours
		}
		if staleHours > maxStaleHours {
			staleHours = maxStaleHours
		}
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		queue:      queue,
		staleHours: staleHours,
		batchSize:  batchSize,
		logger:     logger.With("component", "scheduler"),
	}
}

// Run performs one stale-refresh pass and returns the number of jobs
// enqueued.
func (s *Scheduler) Run(ctx context.Context) (int64, error) {
	hours := s.staleHours
	if hours == 0 {
		hours = minStaleHours + rand.Intn(maxStaleHours-minStaleHours+1)
	}

	enqueued, err := s.queue.EnqueueStaleRefresh(ctx, hours, s.batchSize)
	if err != nil {
		s.logger.Error("stale-refresh pass failed", "stale_hours", hours, "error", err)
		return 0, err
	}
	s.logger.Info("stale-refresh pass complete", "stale_hours", hours, "batch_size", s.batchSize, "enqueued", enqueued)
	return enqueued, nil
}
