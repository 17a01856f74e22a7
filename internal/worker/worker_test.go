package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sena168/aicenghub/internal/models"
	"github.com/sena168/aicenghub/internal/tools"
)

type fakeQueue struct {
	job        *models.QueueJob
	claimErr   error
	completed  []string
	retried    []*models.QueueJob
	lastRunErr error
	recovered  int64
}

func (f *fakeQueue) ClaimNext(ctx context.Context) (*models.QueueJob, error) {
	job := f.job
	f.job = nil
	return job, f.claimErr
}

func (f *fakeQueue) Complete(ctx context.Context, id string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeQueue) RetryOrFail(ctx context.Context, job *models.QueueJob, maxAttempts int, backoffBase time.Duration, runErr error) (models.JobStatus, error) {
	f.retried = append(f.retried, job)
	f.lastRunErr = runErr
	if job.Attempts+1 >= maxAttempts {
		return models.JobFailed, nil
	}
	return models.JobRetry, nil
}

func (f *fakeQueue) RecoverStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	return f.recovered, nil
}

type fakeStore struct {
	mainSet    map[string]bool
	candidates []*models.CandidateLink
	enriched   []*models.MainLink
	checks     []*models.ToolCheck
	upsertErr  error
}

func (f *fakeStore) GetMainURLSet(ctx context.Context) (map[string]bool, error) {
	if f.mainSet == nil {
		return map[string]bool{}, nil
	}
	return f.mainSet, nil
}

func (f *fakeStore) UpsertCandidate(ctx context.Context, c *models.CandidateLink) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeStore) UpdateMainLinkEnrichment(ctx context.Context, m *models.MainLink) error {
	f.enriched = append(f.enriched, m)
	return nil
}

func (f *fakeStore) InsertToolCheck(ctx context.Context, canonicalURL string, check *models.ToolCheck) error {
	f.checks = append(f.checks, check)
	return nil
}

type fakeEnricher struct {
	payload map[string]any
	err     error
	calls   []string
	modes   []string
}

func (f *fakeEnricher) Configured() bool { return true }

func (f *fakeEnricher) Health(ctx context.Context) error { return nil }

func (f *fakeEnricher) Enrich(ctx context.Context, url, mode string) (map[string]any, error) {
	f.calls = append(f.calls, url)
	f.modes = append(f.modes, mode)
	return f.payload, f.err
}

func testWorker(queue *fakeQueue, store *fakeStore, enricher *fakeEnricher) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(queue, store, enricher, Config{}, logger)
}

func testJob() *models.QueueJob {
	return &models.QueueJob{
		ID:           "01JOB",
		CanonicalURL: "https://acme.example",
		RequestedURL: "https://acme.example/",
		Reason:       "candidate-enrichment",
	}
}

func TestProcessNextSuccess(t *testing.T) {
	queue := &fakeQueue{job: testJob()}
	store := &fakeStore{mainSet: map[string]bool{"https://acme.example": true}}
	enricher := &fakeEnricher{payload: map[string]any{
		"items": []any{map[string]any{
			"url": "https://acme.example", "name": "Acme", "pricing": "free",
		}},
	}}

	w := testWorker(queue, store, enricher)
	w.processNext(context.Background())

	if len(enricher.calls) != 1 || enricher.calls[0] != "https://acme.example/" {
		t.Errorf("expected enrich for the requested url, got %v", enricher.calls)
	}
	if enricher.modes[0] != jobEnrichMode {
		t.Errorf("expected mode %q, got %q", jobEnrichMode, enricher.modes[0])
	}
	if len(store.candidates) != 1 {
		t.Fatalf("expected candidate write, got %d", len(store.candidates))
	}
	if store.candidates[0].CaptureReason != jobEnrichMode {
		t.Errorf("unexpected capture reason %q", store.candidates[0].CaptureReason)
	}
	if len(store.enriched) != 1 {
		t.Errorf("expected main link update for matching url, got %d", len(store.enriched))
	}
	if len(store.checks) != 1 {
		t.Errorf("expected tool check, got %d", len(store.checks))
	}
	if len(queue.completed) != 1 || queue.completed[0] != "01JOB" {
		t.Errorf("expected job completed, got %v", queue.completed)
	}
	if len(queue.retried) != 0 {
		t.Error("expected no retry on success")
	}
}

func TestProcessNextNoMainMatch(t *testing.T) {
	queue := &fakeQueue{job: testJob()}
	store := &fakeStore{}
	enricher := &fakeEnricher{payload: map[string]any{
		"items": []any{map[string]any{"url": "https://acme.example", "name": "Acme"}},
	}}

	testWorker(queue, store, enricher).processNext(context.Background())

	if len(store.enriched) != 0 {
		t.Error("expected no main link update without a match")
	}
	if len(store.candidates) != 1 || len(store.checks) != 1 {
		t.Errorf("expected candidate and check writes, got %d/%d", len(store.candidates), len(store.checks))
	}
}

func TestProcessNextEnrichError(t *testing.T) {
	queue := &fakeQueue{job: testJob()}
	enricher := &fakeEnricher{err: errors.New("tools down")}

	testWorker(queue, &fakeStore{}, enricher).processNext(context.Background())

	if len(queue.completed) != 0 {
		t.Error("expected no completion on error")
	}
	if len(queue.retried) != 1 {
		t.Fatalf("expected retry, got %d", len(queue.retried))
	}
	if queue.lastRunErr == nil || queue.lastRunErr.Error() != "tools down" {
		t.Errorf("expected run error forwarded, got %v", queue.lastRunErr)
	}
}

func TestProcessNextEmptyItems(t *testing.T) {
	queue := &fakeQueue{job: testJob()}
	enricher := &fakeEnricher{payload: map[string]any{"items": []any{}}}

	testWorker(queue, &fakeStore{}, enricher).processNext(context.Background())

	if len(queue.retried) != 1 {
		t.Fatalf("expected retry for empty enrichment, got %d", len(queue.retried))
	}
	if queue.lastRunErr == nil {
		t.Fatal("expected an error for empty enrichment")
	}
	if kind := tools.KindOf(queue.lastRunErr); kind != tools.KindEnrichEmpty {
		t.Errorf("error kind = %q, want %q", kind, tools.KindEnrichEmpty)
	}
}

func TestProcessNextStoreError(t *testing.T) {
	queue := &fakeQueue{job: testJob()}
	store := &fakeStore{upsertErr: errors.New("db gone")}
	enricher := &fakeEnricher{payload: map[string]any{
		"items": []any{map[string]any{"url": "https://acme.example"}},
	}}

	testWorker(queue, store, enricher).processNext(context.Background())

	if len(queue.retried) != 1 {
		t.Fatalf("expected retry on store failure, got %d", len(queue.retried))
	}
}

func TestProcessNextQueueEmpty(t *testing.T) {
	queue := &fakeQueue{}
	enricher := &fakeEnricher{}

	testWorker(queue, &fakeStore{}, enricher).processNext(context.Background())

	if len(enricher.calls) != 0 {
		t.Error("expected no enrichment without a claimed job")
	}
}

func TestStartStop(t *testing.T) {
	queue := &fakeQueue{recovered: 2}
	w := New(queue, &fakeStore{}, &fakeEnricher{}, Config{PollInterval: 10 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	w.Stop()
}
