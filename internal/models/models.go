// Package models defines the domain models for the catalog and queue.
package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Ability classifies what a tool can do. Closed vocabulary.
type Ability string

const (
	AbilityText       Ability = "text"
	AbilityImage      Ability = "image"
	AbilityVideo      Ability = "video"
	AbilityAudio      Ability = "audio"
	AbilityCode       Ability = "code"
	AbilityAutomation Ability = "automation"
	AbilityLearning   Ability = "learning"
)

// AllAbilities lists the closed ability vocabulary in canonical order.
var AllAbilities = []Ability{
	AbilityText, AbilityImage, AbilityVideo, AbilityAudio,
	AbilityCode, AbilityAutomation, AbilityLearning,
}

// PricingTier is the closed pricing vocabulary.
type PricingTier string

const (
	PricingFree  PricingTier = "free"
	PricingTrial PricingTier = "trial"
	PricingPaid  PricingTier = "paid"
)

// Tag is the closed tag vocabulary.
type Tag string

const TagWatermarked Tag = "watermarked"

// CandidateStatus is the lifecycle status of a candidate link.
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateMerged   CandidateStatus = "merged"
	CandidateRejected CandidateStatus = "rejected"
)

// JobStatus is the queue job state machine:
// pending -> processing -> (done | retry | failed); retry -> processing.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobRetry      JobStatus = "retry"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// MainLink is a curated catalog entry.
type MainLink struct {
	ID                string      `json:"id"`
	CanonicalURL      string      `json:"canonical_url"`
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	Abilities         []Ability   `json:"abilities,omitempty"`
	Pricing           PricingTier `json:"pricing"`
	Tags              []Tag       `json:"tags,omitempty"`
	PricingText       string      `json:"pricing_text,omitempty"`
	IsFree            bool        `json:"is_free"`
	HasTrial          bool        `json:"has_trial"`
	IsPaid            bool        `json:"is_paid"`
	FaviconURL        string      `json:"favicon_url,omitempty"`
	ThumbnailURL      string      `json:"thumbnail_url,omitempty"`
	PendingEnrichment bool        `json:"pending_enrichment"`
	LastCheckedAt     *time.Time  `json:"last_checked_at,omitempty"`
	Source            string      `json:"source,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// CandidateLink is a publicly observed URL that has not been promoted yet.
type CandidateLink struct {
	ID                string          `json:"id"`
	CanonicalURL      string          `json:"canonical_url"`
	FinalURL          string          `json:"final_url,omitempty"`
	Name              string          `json:"name,omitempty"`
	Description       string          `json:"description,omitempty"`
	Abilities         []Ability       `json:"abilities,omitempty"`
	Pricing           PricingTier     `json:"pricing"`
	Tags              []Tag           `json:"tags,omitempty"`
	PricingText       string          `json:"pricing_text,omitempty"`
	IsFree            bool            `json:"is_free"`
	HasTrial          bool            `json:"has_trial"`
	IsPaid            bool            `json:"is_paid"`
	HTTPStatus        int             `json:"http_status,omitempty"`
	ContentType       string          `json:"content_type,omitempty"`
	VerifiedAt        *time.Time      `json:"verified_at,omitempty"`
	EvidenceURLs      []string        `json:"evidence_urls,omitempty"`
	Evidence          json.RawMessage `json:"evidence,omitempty"`
	Status            CandidateStatus `json:"status"`
	PendingEnrichment bool            `json:"pending_enrichment"`
	DiscoveredCount   int             `json:"discovered_count"`
	DiscoveredBy      string          `json:"discovered_by,omitempty"`
	SubmitterIPHash   string          `json:"submitter_ip_hash,omitempty"`
	SubmitterSessHash string          `json:"submitter_session_hash,omitempty"`
	CaptureReason     string          `json:"capture_reason,omitempty"`
	LastSeenAt        *time.Time      `json:"last_seen_at,omitempty"`
	MergedAt          *time.Time      `json:"merged_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// QueueJob is one unit of background enrichment work.
type QueueJob struct {
	ID           string          `json:"id"`
	CanonicalURL string          `json:"canonical_url"`
	RequestedURL string          `json:"requested_url"`
	Reason       string          `json:"reason"`
	Status       JobStatus       `json:"status"`
	Attempts     int             `json:"attempts"`
	NextRunAt    time.Time       `json:"next_run_at"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ToolCheck is an append-only audit record of one enrichment observation.
type ToolCheck struct {
	ID         string          `json:"id"`
	LinkID     *string         `json:"link_id,omitempty"`
	CheckedAt  time.Time       `json:"checked_at"`
	Result     json.RawMessage `json:"result,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Sources    []string        `json:"sources,omitempty"`
}

// LinkBackup is one rolling snapshot slot of the main catalog.
type LinkBackup struct {
	Slot      int             `json:"slot"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewID returns a fresh ULID string for persisted entities.
func NewID() string {
	return ulid.Make().String()
}

// CanonicalURL normalizes a raw URL into catalog identity form:
// scheme in {http, https} lowercased, no userinfo, no fragment,
// no trailing slash, query preserved.
func CanonicalURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing hostname")
	}
	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.User = nil
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return parsed.String(), nil
}

// CanonicalAbilities filters values against the closed vocabulary,
// dropping unknowns and duplicates. Order follows AllAbilities.
func CanonicalAbilities(values []string) []Ability {
	seen := map[Ability]bool{}
	for _, v := range values {
		a := Ability(strings.ToLower(strings.TrimSpace(v)))
		seen[a] = true
	}
	var out []Ability
	for _, a := range AllAbilities {
		if seen[a] {
			out = append(out, a)
		}
	}
	return out
}

// CanonicalPricing collapses unknown pricing values to trial.
func CanonicalPricing(value string) PricingTier {
	switch PricingTier(strings.ToLower(strings.TrimSpace(value))) {
	case PricingFree:
		return PricingFree
	case PricingPaid:
		return PricingPaid
	default:
		return PricingTrial
	}
}

// CanonicalTags filters values against the closed tag vocabulary.
func CanonicalTags(values []string) []Tag {
	var out []Tag
	for _, v := range values {
		if Tag(strings.ToLower(strings.TrimSpace(v))) == TagWatermarked && !containsTag(out, TagWatermarked) {
			out = append(out, TagWatermarked)
		}
	}
	return out
}

func containsTag(tags []Tag, t Tag) bool {
	for _, existing := range tags {
		if existing == t {
			return true
		}
	}
	return false
}
