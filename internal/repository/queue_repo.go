package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sena168/aicenghub/internal/models"
)

// maxLastErrorChars bounds the stored error message.
const maxLastErrorChars = 2000

// QueueRepository persists the durable scrape queue. Multiple worker
// processes coordinate exclusively through the skip-locked claim.
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

const queueColumns = `id, canonical_url, requested_url, reason, status, attempts, next_run_at,
	payload, last_error, started_at, finished_at, created_at, updated_at`

// Enqueue inserts a pending job. NextRunAt defaults to now.
func (r *QueueRepository) Enqueue(ctx context.Context, job *models.QueueJob) error {
	now := time.Now().UTC()
	if job.ID == "" {
		job.ID = models.NewID()
	}
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	query := `
		INSERT INTO scrape_queue (id, canonical_url, requested_url, reason, status, attempts,
			next_run_at, payload, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.CanonicalURL, job.RequestedURL, job.Reason, string(job.Status),
		job.Attempts, job.NextRunAt, string(job.Payload), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the next eligible job, skipping rows
// locked by other workers. Returns nil when nothing is due.
func (r *QueueRepository) ClaimNext(ctx context.Context) (*models.QueueJob, error) {
	query := `
		UPDATE scrape_queue
		SET status = 'processing', started_at = NOW(), last_error = '', updated_at = NOW()
		WHERE id = (
			SELECT id FROM scrape_queue
			WHERE status IN ('pending', 'retry') AND next_run_at <= NOW()
			ORDER BY next_run_at ASC, created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns
	job, err := scanQueueJob(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Complete marks a job done.
func (r *QueueRepository) Complete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scrape_queue SET status = 'done', finished_at = NOW(), updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// RetryOrFail records a failed run. Below maxAttempts the job is
// rescheduled with quadratic backoff (attempts² × backoffBase); at or
// above it the job is failed terminally and keeps its next_run_at.
func (r *QueueRepository) RetryOrFail(ctx context.Context, job *models.QueueJob, maxAttempts int, backoffBase time.Duration, runErr error) (models.JobStatus, error) {
	attempts := job.Attempts + 1
	lastError := ""
	if runErr != nil {
		lastError = truncateRunes(runErr.Error(), maxLastErrorChars)
	}

	if attempts >= maxAttempts {
		_, err := r.db.ExecContext(ctx, `
			UPDATE scrape_queue
			SET status = 'failed', attempts = $2, last_error = $3, finished_at = NOW(), updated_at = NOW()
			WHERE id = $1
		`, job.ID, attempts, lastError)
		if err != nil {
			return "", fmt.Errorf("failed to fail job: %w", err)
		}
		return models.JobFailed, nil
	}

	nextRunAt := time.Now().UTC().Add(time.Duration(attempts*attempts) * backoffBase)
	_, err := r.db.ExecContext(ctx, `
		UPDATE scrape_queue
		SET status = 'retry', attempts = $2, last_error = $3, next_run_at = $4, updated_at = NOW()
		WHERE id = $1
	`, job.ID, attempts, lastError, nextRunAt)
	if err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}
	return models.JobRetry, nil
}

// EnqueueStaleRefresh inserts scheduled-refresh jobs for catalog
// entries not checked within staleHours, oldest first, skipping URLs
// that already have an active job. One statement, so concurrent
// scheduler runs cannot double-enqueue.
func (r *QueueRepository) EnqueueStaleRefresh(ctx context.Context, staleHours, limit int) (int64, error) {
	query := `
		INSERT INTO scrape_queue (id, canonical_url, requested_url, reason, status, attempts,
			next_run_at, payload, last_error, created_at, updated_at)
		SELECT gen_random_uuid()::text, stale.canonical_url, stale.canonical_url,
			'scheduled-refresh', 'pending', 0, NOW(), '', '', NOW(), NOW()
		FROM (
			SELECT ml.canonical_url
			FROM main_links ml
			WHERE (ml.last_checked_at IS NULL OR ml.last_checked_at < NOW() - ($1 * INTERVAL '1 hour'))
			AND NOT EXISTS (
				SELECT 1 FROM scrape_queue q
				WHERE q.canonical_url = ml.canonical_url
				AND q.status IN ('pending', 'retry', 'processing')
			)
			ORDER BY ml.last_checked_at ASC NULLS FIRST
			LIMIT $2
		) stale
	`
	result, err := r.db.ExecContext(ctx, query, staleHours, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue stale refresh: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// RecoverStuck flips processing jobs older than maxAge back to retry.
// Used at worker startup to reclaim work orphaned by a crash.
func (r *QueueRepository) RecoverStuck(ctx context.Context, maxAge time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE scrape_queue
		SET status = 'retry', next_run_at = NOW(), updated_at = NOW()
		WHERE status = 'processing' AND started_at < NOW() - ($1 * INTERVAL '1 second')
	`, int(maxAge.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stuck jobs: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func scanQueueJob(row *sql.Row) (*models.QueueJob, error) {
	var job models.QueueJob
	var payload string
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.CanonicalURL, &job.RequestedURL, &job.Reason, &job.Status,
		&job.Attempts, &job.NextRunAt, &payload, &job.LastError,
		&startedAt, &finishedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payload != "" {
		job.Payload = []byte(payload)
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
