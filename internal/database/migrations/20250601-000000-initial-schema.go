package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "Initial schema",
		Up: []string{
			// Main links - the curated catalog
			`CREATE TABLE IF NOT EXISTS main_links (
				id TEXT PRIMARY KEY,
				canonical_url TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				abilities TEXT NOT NULL DEFAULT '[]',
				pricing TEXT NOT NULL DEFAULT 'trial',
				tags TEXT NOT NULL DEFAULT '[]',
				pricing_text TEXT NOT NULL DEFAULT '',
				is_free BOOLEAN NOT NULL DEFAULT FALSE,
				has_trial BOOLEAN NOT NULL DEFAULT FALSE,
				is_paid BOOLEAN NOT NULL DEFAULT FALSE,
				favicon_url TEXT NOT NULL DEFAULT '',
				thumbnail_url TEXT NOT NULL DEFAULT '',
				pending_enrichment BOOLEAN NOT NULL DEFAULT FALSE,
				last_checked_at TIMESTAMPTZ,
				source TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_main_links_last_checked_at ON main_links(last_checked_at)`,

			// Candidate links - observed URLs awaiting promotion.
			// The unique index on canonical_url serializes concurrent upserts.
			`CREATE TABLE IF NOT EXISTS candidate_links (
				id TEXT PRIMARY KEY,
				canonical_url TEXT UNIQUE NOT NULL,
				final_url TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				abilities TEXT NOT NULL DEFAULT '[]',
				pricing TEXT NOT NULL DEFAULT 'trial',
				tags TEXT NOT NULL DEFAULT '[]',
				pricing_text TEXT NOT NULL DEFAULT '',
				is_free BOOLEAN NOT NULL DEFAULT FALSE,
				has_trial BOOLEAN NOT NULL DEFAULT FALSE,
				is_paid BOOLEAN NOT NULL DEFAULT FALSE,
				http_status INTEGER NOT NULL DEFAULT 0,
				content_type TEXT NOT NULL DEFAULT '',
				verified_at TIMESTAMPTZ,
				evidence_urls TEXT NOT NULL DEFAULT '[]',
				evidence TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				pending_enrichment BOOLEAN NOT NULL DEFAULT FALSE,
				discovered_count INTEGER NOT NULL DEFAULT 1,
				discovered_by TEXT NOT NULL DEFAULT '',
				submitter_ip_hash TEXT NOT NULL DEFAULT '',
				submitter_session_hash TEXT NOT NULL DEFAULT '',
				capture_reason TEXT NOT NULL DEFAULT '',
				last_seen_at TIMESTAMPTZ,
				merged_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_candidate_links_status ON candidate_links(status)`,

			// Scrape queue - durable enrichment jobs
			`CREATE TABLE IF NOT EXISTS scrape_queue (
				id TEXT PRIMARY KEY,
				canonical_url TEXT NOT NULL,
				requested_url TEXT NOT NULL,
				reason TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				attempts INTEGER NOT NULL DEFAULT 0,
				next_run_at TIMESTAMPTZ NOT NULL,
				payload TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMPTZ,
				finished_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scrape_queue_claim ON scrape_queue(status, next_run_at, created_at, id)`,

			// Tool checks - append-only enrichment audit trail
			`CREATE TABLE IF NOT EXISTS tool_checks (
				id TEXT PRIMARY KEY,
				link_id TEXT,
				checked_at TIMESTAMPTZ NOT NULL,
				result TEXT NOT NULL DEFAULT '',
				confidence DOUBLE PRECISION,
				sources TEXT NOT NULL DEFAULT '[]'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tool_checks_link_id ON tool_checks(link_id)`,

			// Link backups - rolling snapshots of the main catalog.
			// Slot is unique so rewriting a slot replaces the old snapshot.
			`CREATE TABLE IF NOT EXISTS link_backups (
				id TEXT PRIMARY KEY,
				slot INTEGER NOT NULL,
				payload TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_link_backups_slot ON link_backups(slot)`,
		},
	})
}
