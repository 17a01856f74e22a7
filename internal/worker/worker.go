// Package worker runs the background enrichment loop: claim a queue
// job, enrich its URL through the tools service, write the result back
// through the link store.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sena168/aicenghub/internal/models"
	"github.com/sena168/aicenghub/internal/tools"
)

// jobEnrichMode tags tools-service calls made from the queue.
const jobEnrichMode = "queue-enrichment"

// stuckJobAge is how long a job may sit in processing before startup
// recovery sends it back to retry.
const stuckJobAge = time.Hour

// Queue is the claim/complete surface of the scrape queue.
type Queue interface {
	ClaimNext(ctx context.Context) (*models.QueueJob, error)
	Complete(ctx context.Context, id string) error
	RetryOrFail(ctx context.Context, job *models.QueueJob, maxAttempts int, backoffBase time.Duration, runErr error) (models.JobStatus, error)
	RecoverStuck(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Store is the link-store surface enrichment writes through.
type Store interface {
	GetMainURLSet(ctx context.Context) (map[string]bool, error)
	UpsertCandidate(ctx context.Context, c *models.CandidateLink) error
	UpdateMainLinkEnrichment(ctx context.Context, m *models.MainLink) error
	InsertToolCheck(ctx context.Context, canonicalURL string, check *models.ToolCheck) error
}

// Enricher is the tools-service surface the worker needs.
type Enricher interface {
	Configured() bool
	Health(ctx context.Context) error
	Enrich(ctx context.Context, url, mode string) (map[string]any, error)
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
}

// Worker processes enrichment jobs.
type Worker struct {
	queue        Queue
	links        Store
	enricher     Enricher
	pollInterval time.Duration
	maxAttempts  int
	backoffBase  time.Duration
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// New creates a new worker.
func New(queue Queue, links Store, enricher Enricher, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:        queue,
		links:        links,
		enricher:     enricher,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		backoffBase:  cfg.BackoffBase,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start recovers stuck jobs and begins polling.
func (w *Worker) Start(ctx context.Context) {
	if recovered, err := w.queue.RecoverStuck(ctx, stuckJobAge); err != nil {
		w.logger.Error("failed to recover stuck jobs", "error", err)
	} else if recovered > 0 {
		w.logger.Info("recovered stuck jobs", "count", recovered)
	}

	if w.enricher.Configured() {
		if err := w.enricher.Health(ctx); err != nil {
			w.logger.Warn("tools service unhealthy at startup", "error", err)
		}
	} else {
		w.logger.Warn("tools service not configured; jobs will retry until it is")
	}

	w.logger.Info("starting", "poll_interval", w.pollInterval.String(), "max_attempts", w.maxAttempts)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processNext(ctx)
		}
	}
}

func (w *Worker) processNext(ctx context.Context) {
	job, err := w.queue.ClaimNext(ctx)
	if err != nil {
		w.logger.Error("failed to claim job", "error", err)
		return
	}
	if job == nil {
		return // queue drained
	}

	w.logger.Info("processing job", "job_id", job.ID, "url", job.CanonicalURL, "reason", job.Reason, "attempt", job.Attempts+1)

	if err := w.runJob(ctx, job); err != nil {
		status, rerr := w.queue.RetryOrFail(ctx, job, w.maxAttempts, w.backoffBase, err)
		if rerr != nil {
			w.logger.Error("failed to reschedule job", "job_id", job.ID, "error", rerr)
			return
		}
		w.logger.Warn("job errored", "job_id", job.ID, "status", string(status), "error", err)
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		w.logger.Error("failed to complete job", "job_id", job.ID, "error", err)
		return
	}
	w.logger.Info("job done", "job_id", job.ID)
}

// runJob enriches the job's URL and writes every normalized item back:
// candidate always, main link when one matches, tool check per item.
func (w *Worker) runJob(ctx context.Context, job *models.QueueJob) error {
	target := job.RequestedURL
	if target == "" {
		target = job.CanonicalURL
	}

	payload, err := w.enricher.Enrich(ctx, target, jobEnrichMode)
	items := tools.NormalizeItems(payload, 12)
	if len(items) == 0 {
		if err != nil {
			return err
		}
		return &tools.Error{Kind: tools.KindEnrichEmpty}
	}

	mainSet, err := w.links.GetMainURLSet(ctx)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := w.links.UpsertCandidate(ctx, candidateFromItem(item)); err != nil {
			return err
		}
		if mainSet[item.CanonicalURL] {
			if err := w.links.UpdateMainLinkEnrichment(ctx, mainLinkFromItem(item)); err != nil {
				return err
			}
		}
		if err := w.links.InsertToolCheck(ctx, item.CanonicalURL, toolCheckFromItem(item)); err != nil {
			return err
		}
	}
	return nil
}

func candidateFromItem(item tools.Item) *models.CandidateLink {
	now := time.Now().UTC()
	return &models.CandidateLink{
		CanonicalURL:  item.CanonicalURL,
		FinalURL:      item.FinalURL,
		Name:          item.Name,
		Description:   item.Description,
		Abilities:     item.Abilities,
		Pricing:       item.Pricing,
		Tags:          item.Tags,
		PricingText:   item.PricingText,
		IsFree:        item.IsFree,
		HasTrial:      item.HasTrial,
		IsPaid:        item.IsPaid,
		VerifiedAt:    &now,
		EvidenceURLs:  item.Sources,
		CaptureReason: jobEnrichMode,
		DiscoveredBy:  "queue-worker",
	}
}

func mainLinkFromItem(item tools.Item) *models.MainLink {
	now := time.Now().UTC()
	return &models.MainLink{
		CanonicalURL:  item.CanonicalURL,
		Name:          item.Name,
		Description:   item.Description,
		Abilities:     item.Abilities,
		Pricing:       item.Pricing,
		Tags:          item.Tags,
		PricingText:   item.PricingText,
		IsFree:        item.IsFree,
		HasTrial:      item.HasTrial,
		IsPaid:        item.IsPaid,
		FaviconURL:    item.FaviconURL,
		ThumbnailURL:  item.ThumbnailURL,
		LastCheckedAt: &now,
	}
}

func toolCheckFromItem(item tools.Item) *models.ToolCheck {
	result := map[string]any{
		"name":        item.Name,
		"pricing":     item.Pricing,
		"isFree":      item.IsFree,
		"hasTrial":    item.HasTrial,
		"isPaid":      item.IsPaid,
		"pricingText": item.PricingText,
	}
	raw, _ := json.Marshal(result)
	return &models.ToolCheck{
		Result:     raw,
		Confidence: item.Confidence,
		Sources:    item.Sources,
	}
}
