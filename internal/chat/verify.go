package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sena168/aicenghub/internal/fetch"
	"github.com/sena168/aicenghub/internal/models"
	"github.com/sena168/aicenghub/internal/tools"
)

// externalTagPhrase marks assistant lines naming tools outside the
// catalog. Only tagged lines are eligible for candidate capture when
// the tag appears anywhere in the reply.
const externalTagPhrase = "external (not in aicenghub catalog)"

// docsSuffixes are the well-known documentation paths probed during
// candidate capture, after the landing page itself.
var docsSuffixes = []string{"/docs", "/documentation", "/help"}

// verifyURLs checks each URL with a HEAD request, falling back to GET
// when HEAD fails or is rejected. Results keep request order.
func (s *Service) verifyURLs(ctx context.Context, sem *semaphore.Weighted, urls []string, note string) []VerifiedLink {
	out := make([]VerifiedLink, 0, len(urls))
	for _, raw := range urls {
		out = append(out, s.verifyOne(ctx, sem, raw, note))
	}
	return out
}

func (s *Service) verifyOne(ctx context.Context, sem *semaphore.Weighted, raw, note string) VerifiedLink {
	link := VerifiedLink{URL: raw, Note: note}

	canonical, err := models.CanonicalURL(raw)
	if err != nil {
		link.Note = "invalid-url"
		return link
	}
	link.CanonicalURL = canonical

	res, err := s.gatedFetch(ctx, sem, raw, fetch.Options{Method: http.MethodHead})
	if err != nil || !res.OK {
		res, err = s.gatedFetch(ctx, sem, raw, fetch.Options{})
	}
	if err != nil {
		link.Note = string(fetch.KindOf(err))
		return link
	}

	link.OK = res.OK
	link.Status = res.Status
	link.FinalURL = res.FinalURL
	link.ContentType = res.ContentType
	if res.OK && strings.HasPrefix(res.ContentType, "text/html") && res.Body != "" {
		link.Title = SummarizeHTML(res.Body).Title
	}
	return link
}

// gatedFetch serializes outbound fetches through the per-request
// semaphore.
func (s *Service) gatedFetch(ctx context.Context, sem *semaphore.Weighted, rawURL string, opts fetch.Options) (*fetch.Result, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, &fetch.Error{Kind: fetch.ErrTimeoutTotal, URL: rawURL, Err: err}
	}
	defer sem.Release(1)
	return s.fetchFn(ctx, rawURL, opts)
}

// captureCandidates extracts URLs from the assistant reply, verifies
// them, and stores up to four unknown externally-tagged ones as
// candidates with enrichment jobs. Returns the verification results so
// the client sees what was checked.
func (s *Service) captureCandidates(ctx context.Context, logger *slog.Logger, sem *semaphore.Weighted, ident Identity, assistantText string) []VerifiedLink {
	urls := ExtractURLs(assistantText)
	if len(urls) == 0 {
		return nil
	}

	// Assistant-driven checks share the user URL bucket. On denial the
	// reply already has its text, so capture is skipped, not erred.
	urlRes := s.limiter.Consume(request("url:"+ident.ClientIP, urlBucketLimit, len(urls)))
	if !urlRes.Allowed {
		logger.Info("skipping candidate capture, url bucket exhausted", "urls", len(urls))
		return nil
	}

	external := externalTaggedURLs(assistantText)
	verified := s.verifyURLs(ctx, sem, urls, "assistant-url")

	mainSet, err := s.links.GetMainURLSet(ctx)
	if err != nil {
		logger.Warn("failed to load main url set for capture", "error", err)
		return verified
	}

	captured := 0
	for _, v := range verified {
		if captured >= maxCapturedCandidates {
			break
		}
		if !v.OK || v.CanonicalURL == "" {
			continue
		}
		if len(external) > 0 && !external[v.CanonicalURL] {
			continue
		}
		if mainSet[v.CanonicalURL] {
			continue
		}
		s.captureOne(ctx, logger, sem, ident, v)
		captured++
	}
	return verified
}

// captureOne builds a candidate from the landing page plus docs
// suffixes and enqueues an enrichment job for it.
func (s *Service) captureOne(ctx context.Context, logger *slog.Logger, sem *semaphore.Weighted, ident Identity, v VerifiedLink) {
	var title, desc string
	var evidence []string
	var combined strings.Builder

	pages := append([]string{v.CanonicalURL}, docsPages(v.CanonicalURL)...)
	for _, page := range pages {
		res, err := s.gatedFetch(ctx, sem, page, fetch.Options{})
		if err != nil || !res.OK {
			continue
		}
		evidence = append(evidence, page)
		if !strings.HasPrefix(res.ContentType, "text/html") {
			continue
		}
		summary := SummarizeHTML(res.Body)
		if title == "" {
			title = summary.Title
		}
		if desc == "" {
			desc = summary.Description
		}
		combined.WriteString(summary.Title)
		combined.WriteString(" ")
		combined.WriteString(summary.Description)
		combined.WriteString(" ")
	}

	evidenceText := combined.String()
	isFree, hasTrial, isPaid := models.InferPricingFlags(evidenceText)

	now := time.Now().UTC()
	cand := &models.CandidateLink{
		CanonicalURL:      v.CanonicalURL,
		FinalURL:          v.FinalURL,
		Name:              title,
		Description:       desc,
		Abilities:         models.InferAbilities(evidenceText),
		Pricing:           pricingFromFlags(isFree, hasTrial, isPaid),
		IsFree:            isFree,
		HasTrial:          hasTrial,
		IsPaid:            isPaid,
		HTTPStatus:        v.Status,
		ContentType:       v.ContentType,
		VerifiedAt:        &now,
		EvidenceURLs:      evidence,
		CaptureReason:     captureAssistantLink,
		DiscoveredBy:      discoveredByPipeline,
		SubmitterIPHash:   ident.IPHash,
		SubmitterSessHash: ident.SessionHash,
	}
	if err := s.links.UpsertCandidate(ctx, cand); err != nil {
		logger.Warn("failed to capture candidate", "url", v.CanonicalURL, "error", err)
		return
	}

	job := &models.QueueJob{CanonicalURL: v.CanonicalURL, RequestedURL: v.URL, Reason: jobReasonCandidate}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		logger.Warn("failed to enqueue candidate enrichment", "url", v.CanonicalURL, "error", err)
	}
}

func docsPages(canonicalURL string) []string {
	base := strings.TrimRight(canonicalURL, "/")
	out := make([]string, 0, len(docsSuffixes))
	for _, suffix := range docsSuffixes {
		out = append(out, base+suffix)
	}
	return out
}

// externalTaggedURLs maps canonical URLs that appear on assistant
// lines carrying the external tag.
func externalTaggedURLs(text string) map[string]bool {
	out := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(strings.ToLower(line), externalTagPhrase) {
			continue
		}
		for _, raw := range urlPattern.FindAllString(line, -1) {
			raw = strings.TrimRight(raw, urlTrailingPunct)
			if canonical, err := models.CanonicalURL(raw); err == nil {
				out[canonical] = true
			}
		}
	}
	return out
}

func pricingFromFlags(isFree, hasTrial, isPaid bool) models.PricingTier {
	switch {
	case isFree && !isPaid:
		return models.PricingFree
	case isPaid && !isFree && !hasTrial:
		return models.PricingPaid
	default:
		return models.PricingTrial
	}
}

// urlCheckContext renders verification results for the model context.
func urlCheckContext(verified []VerifiedLink) string {
	if len(verified) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("URL checks this turn:")
	for _, v := range verified {
		b.WriteString("\n- ")
		b.WriteString(v.URL)
		if v.OK {
			b.WriteString(fmt.Sprintf(": reachable (HTTP %d", v.Status))
			if v.Title != "" {
				b.WriteString(", title: " + v.Title)
			}
			b.WriteString(")")
		} else if v.Status > 0 {
			b.WriteString(fmt.Sprintf(": unreachable (HTTP %d)", v.Status))
		} else {
			b.WriteString(": unreachable (" + v.Note + ")")
		}
	}
	return b.String()
}

// toolsContextBlock renders normalized live-tools items for the model.
func toolsContextBlock(items []tools.Item) string {
	var b strings.Builder
	b.WriteString("Live-tools results this turn:")
	for _, item := range items {
		name := item.Name
		if name == "" {
			name = item.CanonicalURL
		}
		b.WriteString(fmt.Sprintf("\n- %s (%s): pricing %s", name, item.CanonicalURL, item.Pricing))
		if len(item.Abilities) > 0 {
			parts := make([]string, 0, len(item.Abilities))
			for _, a := range item.Abilities {
				parts = append(parts, string(a))
			}
			b.WriteString(", abilities " + strings.Join(parts, "/"))
		}
	}
	return b.String()
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

func candidateFromItem(item tools.Item, ident Identity, reason string) *models.CandidateLink {
	now := time.Now().UTC()
	return &models.CandidateLink{
		CanonicalURL:      item.CanonicalURL,
		FinalURL:          item.FinalURL,
		Name:              item.Name,
		Description:       item.Description,
		Abilities:         item.Abilities,
		Pricing:           item.Pricing,
		Tags:              item.Tags,
		PricingText:       item.PricingText,
		IsFree:            item.IsFree,
		HasTrial:          item.HasTrial,
		IsPaid:            item.IsPaid,
		VerifiedAt:        &now,
		EvidenceURLs:      item.Sources,
		CaptureReason:     reason,
		DiscoveredBy:      discoveredByPipeline,
		SubmitterIPHash:   ident.IPHash,
		SubmitterSessHash: ident.SessionHash,
	}
}

func toolCheckFromItem(item tools.Item) *models.ToolCheck {
	result, _ := json.Marshal(map[string]any{
		"name":        item.Name,
		"pricing":     item.Pricing,
		"isFree":      item.IsFree,
		"hasTrial":    item.HasTrial,
		"isPaid":      item.IsPaid,
		"pricingText": item.PricingText,
	})
	return &models.ToolCheck{
		Result:     result,
		Confidence: item.Confidence,
		Sources:    item.Sources,
	}
}
