package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sena168/aicenghub/internal/models"
)

// LinkRepository persists main links, candidates, tool checks, and
// catalog backups.
type LinkRepository struct {
	db *sql.DB
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

const mainLinkColumns = `id, canonical_url, name, description, abilities, pricing, tags, pricing_text,
	is_free, has_trial, is_paid, favicon_url, thumbnail_url, pending_enrichment,
	last_checked_at, source, created_at, updated_at`

// GetMainLinks returns the full catalog ordered by lowercase name.
func (r *LinkRepository) GetMainLinks(ctx context.Context) ([]*models.MainLink, error) {
	query := `SELECT ` + mainLinkColumns + ` FROM main_links ORDER BY LOWER(name) ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query main links: %w", err)
	}
	defer rows.Close()

	var links []*models.MainLink
	for rows.Next() {
		link, err := scanMainLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// GetMainURLSet returns the set of canonical URLs in the catalog.
func (r *LinkRepository) GetMainURLSet(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT canonical_url FROM main_links`)
	if err != nil {
		return nil, fmt.Errorf("failed to query main urls: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		set[u] = true
	}
	return set, rows.Err()
}

// UpsertCandidate inserts a candidate keyed by canonical URL. On
// conflict the discovered count is bumped, evidence is overwritten,
// status stays pending, and descriptive fields follow a first-non-empty
// policy so a sparse re-observation never erases richer prior data.
func (r *LinkRepository) UpsertCandidate(ctx context.Context, c *models.CandidateLink) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = models.NewID()
	}
	if c.Status == "" {
		c.Status = models.CandidatePending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.LastSeenAt == nil {
		c.LastSeenAt = &now
	}

	query := `
		INSERT INTO candidate_links (id, canonical_url, final_url, name, description, abilities,
			pricing, tags, pricing_text, is_free, has_trial, is_paid, http_status, content_type,
			verified_at, evidence_urls, evidence, status, pending_enrichment, discovered_count,
			discovered_by, submitter_ip_hash, submitter_session_hash, capture_reason,
			last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, 1, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (canonical_url) DO UPDATE SET
			discovered_count = candidate_links.discovered_count + 1,
			status = 'pending',
			evidence = EXCLUDED.evidence,
			evidence_urls = EXCLUDED.evidence_urls,
			is_free = EXCLUDED.is_free,
			has_trial = EXCLUDED.has_trial,
			is_paid = EXCLUDED.is_paid,
			pending_enrichment = EXCLUDED.pending_enrichment,
			name = CASE WHEN candidate_links.name = '' THEN EXCLUDED.name ELSE candidate_links.name END,
			description = CASE WHEN candidate_links.description = '' THEN EXCLUDED.description ELSE candidate_links.description END,
			abilities = CASE WHEN candidate_links.abilities IN ('', '[]') THEN EXCLUDED.abilities ELSE candidate_links.abilities END,
			pricing = CASE WHEN candidate_links.pricing = '' THEN EXCLUDED.pricing ELSE candidate_links.pricing END,
			tags = CASE WHEN candidate_links.tags IN ('', '[]') THEN EXCLUDED.tags ELSE candidate_links.tags END,
			pricing_text = CASE WHEN candidate_links.pricing_text = '' THEN EXCLUDED.pricing_text ELSE candidate_links.pricing_text END,
			final_url = CASE WHEN candidate_links.final_url = '' THEN EXCLUDED.final_url ELSE candidate_links.final_url END,
			content_type = CASE WHEN candidate_links.content_type = '' THEN EXCLUDED.content_type ELSE candidate_links.content_type END,
			http_status = CASE WHEN candidate_links.http_status = 0 THEN EXCLUDED.http_status ELSE candidate_links.http_status END,
			verified_at = GREATEST(candidate_links.verified_at, EXCLUDED.verified_at),
			last_seen_at = GREATEST(candidate_links.last_seen_at, EXCLUDED.last_seen_at),
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.CanonicalURL, c.FinalURL, c.Name, c.Description, encodeJSON(c.Abilities),
		string(c.Pricing), encodeJSON(c.Tags), c.PricingText, c.IsFree, c.HasTrial, c.IsPaid,
		c.HTTPStatus, c.ContentType, c.VerifiedAt, encodeJSON(c.EvidenceURLs), string(c.Evidence),
		string(c.Status), c.PendingEnrichment, c.DiscoveredBy, c.SubmitterIPHash,
		c.SubmitterSessHash, c.CaptureReason, c.LastSeenAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate: %w", err)
	}
	return nil
}

// UpdateMainLinkEnrichment applies enrichment to an existing main link
// by canonical URL. String fields only overwrite when the new value is
// non-empty; booleans and last_checked_at always overwrite.
func (r *LinkRepository) UpdateMainLinkEnrichment(ctx context.Context, m *models.MainLink) error {
	now := time.Now().UTC()
	if m.LastCheckedAt == nil {
		m.LastCheckedAt = &now
	}

	query := `
		UPDATE main_links SET
			name = CASE WHEN $2 <> '' THEN $2 ELSE name END,
			description = CASE WHEN $3 <> '' THEN $3 ELSE description END,
			abilities = CASE WHEN $4 NOT IN ('', '[]') THEN $4 ELSE abilities END,
			pricing = CASE WHEN $5 <> '' THEN $5 ELSE pricing END,
			tags = CASE WHEN $6 NOT IN ('', '[]') THEN $6 ELSE tags END,
			pricing_text = CASE WHEN $7 <> '' THEN $7 ELSE pricing_text END,
			favicon_url = CASE WHEN $8 <> '' THEN $8 ELSE favicon_url END,
			thumbnail_url = CASE WHEN $9 <> '' THEN $9 ELSE thumbnail_url END,
			is_free = $10,
			has_trial = $11,
			is_paid = $12,
			pending_enrichment = $13,
			last_checked_at = $14,
			updated_at = $15
		WHERE canonical_url = $1
	`
	_, err := r.db.ExecContext(ctx, query,
		m.CanonicalURL, m.Name, m.Description, encodeJSON(m.Abilities), string(m.Pricing),
		encodeJSON(m.Tags), m.PricingText, m.FaviconURL, m.ThumbnailURL,
		m.IsFree, m.HasTrial, m.IsPaid, m.PendingEnrichment, m.LastCheckedAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update main link enrichment: %w", err)
	}
	return nil
}

// InsertToolCheck appends an audit row, joined to a main link by
// canonical URL when one exists. Confidence is clamped to [0,1].
func (r *LinkRepository) InsertToolCheck(ctx context.Context, canonicalURL string, check *models.ToolCheck) error {
	if check.ID == "" {
		check.ID = models.NewID()
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now().UTC()
	}
	if check.Confidence != nil {
		clamped := *check.Confidence
		if clamped < 0 {
			clamped = 0
		}
		if clamped > 1 {
			clamped = 1
		}
		check.Confidence = &clamped
	}

	query := `
		INSERT INTO tool_checks (id, link_id, checked_at, result, confidence, sources)
		VALUES ($1, (SELECT id FROM main_links WHERE canonical_url = $2), $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		check.ID, canonicalURL, check.CheckedAt, string(check.Result),
		check.Confidence, encodeJSON(check.Sources),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tool check: %w", err)
	}
	return nil
}

// MergeResult summarizes one merge pass.
type MergeResult struct {
	Merged     int
	Rejected   int
	BackupSlot int
}

// MergePendingCandidates snapshots the catalog into the next rolling
// backup slot, then promotes pending candidates in creation order.
// Promotion is conflict-do-nothing on canonical URL; candidates whose
// URL cannot be normalized are marked rejected instead.
func (r *LinkRepository) MergePendingCandidates(ctx context.Context) (*MergeResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	// Snapshot the catalog first so a bad merge is recoverable.
	links, err := queryMainLinks(ctx, tx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup payload: %w", err)
	}

	var maxSlot int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(slot), 0) FROM link_backups`).Scan(&maxSlot); err != nil {
		return nil, fmt.Errorf("failed to read backup slots: %w", err)
	}
	slot := (maxSlot % 30) + 1

	// Slots cycle 1..30; once all thirty exist the write lands on the
	// oldest slot and replaces its snapshot.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO link_backups (id, slot, payload, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (slot) DO UPDATE SET id = EXCLUDED.id, payload = EXCLUDED.payload, created_at = EXCLUDED.created_at`,
		models.NewID(), slot, string(payload), now,
	); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, canonical_url, final_url, name, description, abilities, pricing, tags,
			pricing_text, is_free, has_trial, is_paid, pending_enrichment
		FROM candidate_links WHERE status = 'pending' ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending candidates: %w", err)
	}

	type pendingCandidate struct {
		id, url, finalURL, name, description string
		abilities, pricing, tags             string
		pricingText                          string
		isFree, hasTrial, isPaid, pendingEn  bool
	}
	var pending []pendingCandidate
	for rows.Next() {
		var c pendingCandidate
		if err := rows.Scan(&c.id, &c.url, &c.finalURL, &c.name, &c.description,
			&c.abilities, &c.pricing, &c.tags, &c.pricingText,
			&c.isFree, &c.hasTrial, &c.isPaid, &c.pendingEn); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		pending = append(pending, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}

	result := &MergeResult{BackupSlot: slot}
	for _, c := range pending {
		canonical, err := models.CanonicalURL(c.url)
		if err != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE candidate_links SET status = 'rejected', updated_at = $2 WHERE id = $1`,
				c.id, now,
			); err != nil {
				return nil, fmt.Errorf("failed to reject candidate: %w", err)
			}
			result.Rejected++
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO main_links (id, canonical_url, name, description, abilities, pricing,
				tags, pricing_text, is_free, has_trial, is_paid, pending_enrichment, source,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'candidate-merge', $13, $13)
			ON CONFLICT (canonical_url) DO NOTHING
		`,
			models.NewID(), canonical, c.name, c.description, c.abilities, c.pricing,
			c.tags, c.pricingText, c.isFree, c.hasTrial, c.isPaid, c.pendingEn, now,
		); err != nil {
			return nil, fmt.Errorf("failed to promote candidate: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE candidate_links SET status = 'merged', merged_at = $2, updated_at = $2 WHERE id = $1`,
			c.id, now,
		); err != nil {
			return nil, fmt.Errorf("failed to mark candidate merged: %w", err)
		}
		result.Merged++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit merge: %w", err)
	}
	committed = true

	return result, nil
}

// RefreshMainPricingTiers re-canonicalizes pricing tiers and tags
// across the catalog, updating only rows that changed.
func (r *LinkRepository) RefreshMainPricingTiers(ctx context.Context) (int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, pricing, tags FROM main_links`)
	if err != nil {
		return 0, fmt.Errorf("failed to query main links: %w", err)
	}

	type row struct{ id, pricing, tags string }
	var all []row
	for rows.Next() {
		var v row
		if err := rows.Scan(&v.id, &v.pricing, &v.tags); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan main link: %w", err)
		}
		all = append(all, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating main links: %w", err)
	}

	updated := 0
	now := time.Now().UTC()
	for _, v := range all {
		pricing := string(models.CanonicalPricing(v.pricing))
		tags := encodeJSON(models.CanonicalTags(decodeStrings(v.tags)))
		if pricing == v.pricing && tags == v.tags {
			continue
		}
		if _, err := r.db.ExecContext(ctx,
			`UPDATE main_links SET pricing = $2, tags = $3, updated_at = $4 WHERE id = $1`,
			v.id, pricing, tags, now,
		); err != nil {
			return updated, fmt.Errorf("failed to refresh pricing: %w", err)
		}
		updated++
	}
	return updated, nil
}

// LatestBackupSlot returns the most recent backup slot and its
// timestamp, or (0, nil) when no backup exists yet.
func (r *LinkRepository) LatestBackupSlot(ctx context.Context) (int, *time.Time, error) {
	var slot int
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT slot, created_at FROM link_backups ORDER BY created_at DESC LIMIT 1`,
	).Scan(&slot, &createdAt)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to query latest backup: %w", err)
	}
	return slot, &createdAt, nil
}

// querier lets scans run against either the pool or a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMainLinks(ctx context.Context, q querier) ([]*models.MainLink, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+mainLinkColumns+` FROM main_links ORDER BY LOWER(name) ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query main links: %w", err)
	}
	defer rows.Close()

	var links []*models.MainLink
	for rows.Next() {
		link, err := scanMainLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanMainLink(rows *sql.Rows) (*models.MainLink, error) {
	var m models.MainLink
	var abilities, tags string
	var lastCheckedAt sql.NullTime

	err := rows.Scan(
		&m.ID, &m.CanonicalURL, &m.Name, &m.Description, &abilities, &m.Pricing, &tags,
		&m.PricingText, &m.IsFree, &m.HasTrial, &m.IsPaid, &m.FaviconURL, &m.ThumbnailURL,
		&m.PendingEnrichment, &lastCheckedAt, &m.Source, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan main link: %w", err)
	}

	m.Abilities = models.CanonicalAbilities(decodeStrings(abilities))
	m.Tags = models.CanonicalTags(decodeStrings(tags))
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time
		m.LastCheckedAt = &t
	}
	return &m, nil
}
