package tools

import (
	"strings"

	"github.com/sena168/aicenghub/internal/models"
)

// Field length bounds applied during normalization.
const (
	maxDescriptionChars = 800
	maxPricingTextChars = 500
)

// Item is a tool record normalized from a tools-service response. Items
// without a usable canonical URL are dropped before they reach callers.
type Item struct {
	CanonicalURL string
	FinalURL     string
	Name         string
	Description  string
	Abilities    []models.Ability
	Pricing      models.PricingTier
	Tags         []models.Tag
	PricingText  string
	IsFree       bool
	HasTrial     bool
	IsPaid       bool
	FaviconURL   string
	ThumbnailURL string
	Confidence   *float64
	Sources      []string
}

// itemPools are the places a tools response may keep its result list,
// probed in order. The root object itself is the last resort.
var itemPools = []string{"items", "results", "tools", "matches", "data.items", "data.results", "item", "result"}

// NormalizeItems extracts and normalizes tool records from a raw tools
// response. maxSources bounds the per-item source list (callers pass 10 from
// the chat pipeline, 12 from the worker). Items are deduped by canonical URL.
func NormalizeItems(payload map[string]any, maxSources int) []Item {
	if payload == nil {
		return nil
	}
	if maxSources <= 0 {
		maxSources = 10
	}

	candidates := collectCandidates(payload)
	seen := map[string]bool{}
	var out []Item
	for _, raw := range candidates {
		item, ok := normalizeOne(raw, maxSources)
		if !ok || seen[item.CanonicalURL] {
			continue
		}
		seen[item.CanonicalURL] = true
		out = append(out, item)
	}
	return out
}

// collectCandidates walks the fixed pool list and falls back to the root.
func collectCandidates(payload map[string]any) []map[string]any {
	var out []map[string]any
	for _, pool := range itemPools {
		value := lookupPath(payload, pool)
		switch v := value.(type) {
		case []any:
			for _, entry := range v {
				if m, ok := entry.(map[string]any); ok {
					out = append(out, m)
				}
			}
		case map[string]any:
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = append(out, payload)
	}
	return out
}

func lookupPath(m map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = m
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

func normalizeOne(raw map[string]any, maxSources int) (Item, bool) {
	rawURL := firstString(raw, "canonicalUrl", "canonical_url", "url", "finalUrl", "final_url", "fallbackUrl", "fallback_url")
	canonical, err := models.CanonicalURL(rawURL)
	if err != nil {
		return Item{}, false
	}

	item := Item{
		CanonicalURL: canonical,
		FinalURL:     firstString(raw, "finalUrl", "final_url"),
		Name:         strings.TrimSpace(firstString(raw, "name", "title")),
		Description:  truncate(strings.TrimSpace(firstString(raw, "description", "summary")), maxDescriptionChars),
		PricingText:  truncate(strings.TrimSpace(firstString(raw, "pricingText", "pricing_text")), maxPricingTextChars),
		FaviconURL:   firstString(raw, "faviconUrl", "favicon_url", "favicon"),
		ThumbnailURL: firstString(raw, "thumbnailUrl", "thumbnail_url", "thumbnail"),
		Pricing:      models.CanonicalPricing(firstString(raw, "pricing", "pricingTier", "pricing_tier")),
		Tags:         models.CanonicalTags(stringSlice(raw["tags"])),
	}

	item.Abilities = models.CanonicalAbilities(stringSlice(raw["abilities"]))
	if len(item.Abilities) == 0 {
		item.Abilities = models.InferAbilities(item.Name + " " + item.Description + " " + item.PricingText)
	}

	// Explicit booleans win; keyword scan fills in the gaps.
	scanFree, scanTrial, scanPaid := models.InferPricingFlags(item.PricingText)
	item.IsFree = boolOr(raw, scanFree, "isFree", "is_free")
	item.HasTrial = boolOr(raw, scanTrial, "hasTrial", "has_trial")
	item.IsPaid = boolOr(raw, scanPaid, "isPaid", "is_paid")

	if conf, ok := floatValue(raw["confidence"]); ok {
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		item.Confidence = &conf
	}

	sources := stringSlice(firstPresent(raw, "sources", "sourceUrls", "source_urls"))
	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	item.Sources = sources

	return item, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}

func boolOr(m map[string]any, fallback bool, keys ...string) bool {
	for _, key := range keys {
		if b, ok := m[key].(bool); ok {
			return b
		}
	}
	return fallback
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func stringSlice(v any) []string {
	switch values := v.(type) {
	case []any:
		var out []string
		for _, entry := range values {
			if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return values
	case string:
		if strings.TrimSpace(values) == "" {
			return nil
		}
		return []string{strings.TrimSpace(values)}
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
