// Package repository implements persistence for the catalog and queue
// over Postgres with raw SQL.
package repository

import (
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/sena168/aicenghub/internal/database/migrations"
)

// Repositories bundles all repository implementations.
type Repositories struct {
	Links *LinkRepository
	Queue *QueueRepository
}

// New creates all repositories backed by the given database.
func New(db *sql.DB) *Repositories {
	return &Repositories{
		Links: NewLinkRepository(db),
		Queue: NewQueueRepository(db),
	}
}

// EnsureSchema runs all pending schema migrations. Idempotent.
func EnsureSchema(db *sql.DB, logger *slog.Logger) error {
	return migrations.Run(db, logger)
}

// encodeJSON marshals a list field for storage. Empty and nil values
// collapse to the empty JSON array.
func encodeJSON(v any) string {
	if v == nil {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func decodeStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
