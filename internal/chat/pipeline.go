// Package chat implements the guarded chat pipeline behind
// POST /juleha-chat: policy gates, context assembly, model fan-out,
// output guarding, and candidate capture.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sena168/aicenghub/internal/config"
	"github.com/sena168/aicenghub/internal/fetch"
	"github.com/sena168/aicenghub/internal/llm"
	"github.com/sena168/aicenghub/internal/models"
	"github.com/sena168/aicenghub/internal/policy"
	"github.com/sena168/aicenghub/internal/ratelimit"
	"github.com/sena168/aicenghub/internal/tools"
)

const (
	// maxBodyBytes caps the request body.
	maxBodyBytes = 64 << 10

	// Rate-limit buckets per client IP.
	chatBucketLimit = 30
	urlBucketLimit  = 10
	bucketWindow    = 10 * time.Minute

	// fetchConcurrency gates outbound fetches within one request.
	fetchConcurrency = 3

	// maxCapturedCandidates bounds candidate capture per reply.
	maxCapturedCandidates = 4
)

// Capture reasons and queue job reasons written by the pipeline.
const (
	capturePendingToolsDown = "pending-enrichment-tools-down"
	captureAssistantLink    = "assistant-verified-link"
	captureLiveTools        = "live-tools-enrichment"

	jobReasonToolsDown   = "tools-down-pending-enrichment"
	jobReasonCandidate   = "candidate-enrichment"
	discoveredByPipeline = "juleha-chat"
)

// LinkStore is the subset of the link repository the pipeline uses.
// A nil store degrades gracefully: capture is skipped and the catalog
// snippet becomes a stub.
type LinkStore interface {
	GetMainLinks(ctx context.Context) ([]*models.MainLink, error)
	GetMainURLSet(ctx context.Context) (map[string]bool, error)
	UpsertCandidate(ctx context.Context, c *models.CandidateLink) error
	UpdateMainLinkEnrichment(ctx context.Context, m *models.MainLink) error
	InsertToolCheck(ctx context.Context, canonicalURL string, check *models.ToolCheck) error
}

// JobQueue enqueues background enrichment work.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.QueueJob) error
}

// ToolsClient is the live enrichment/search service.
type ToolsClient interface {
	Configured() bool
	Enrich(ctx context.Context, url, mode string) (map[string]any, error)
	Search(ctx context.Context, query string) (map[string]any, error)
}

// Completer fans a conversation out across upstream routes.
type Completer interface {
	Complete(ctx context.Context, routes []llm.Route, messages []llm.Message) (*llm.Result, error)
}

// FetchFunc matches fetch.Fetch, injectable for tests.
type FetchFunc func(ctx context.Context, rawURL string, opts fetch.Options) (*fetch.Result, error)

// VerifiedLink is one URL observation returned to the client.
type VerifiedLink struct {
	URL          string `json:"url"`
	CanonicalURL string `json:"canonicalUrl"`
	FinalURL     string `json:"finalUrl,omitempty"`
	OK           bool   `json:"ok"`
	Status       int    `json:"status,omitempty"`
	ContentType  string `json:"contentType,omitempty"`
	Title        string `json:"title,omitempty"`
	Note         string `json:"note,omitempty"`
}

// Response is the chat endpoint's success body.
type Response struct {
	AssistantText string         `json:"assistantText"`
	RouteLabel    string         `json:"routeLabel"`
	VerifiedLinks []VerifiedLink `json:"verifiedLinks"`
}

// Service is the chat pipeline with its collaborators wired in.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	tools   ToolsClient
	model   Completer
	links   LinkStore
	queue   JobQueue
	fetchFn FetchFunc
}

// NewService creates the pipeline. links and queue may be nil when the
// store is unavailable.
func NewService(cfg *config.Config, logger *slog.Logger, limiter *ratelimit.Limiter, toolsClient ToolsClient, model Completer, links LinkStore, queue JobQueue) *Service {
	return &Service{
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
		tools:   toolsClient,
		model:   model,
		links:   links,
		queue:   queue,
		fetchFn: fetch.Fetch,
	}
}

type httpError struct {
	status     int
	message    string
	retryAfter int
}

// ServeHTTP handles POST /juleha-chat.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	ident := IdentityFromRequest(r, s.cfg.AuditSalt)
	logger := s.logger.With("request_id", ident.RequestID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.originAllowed(r) {
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	if r.ContentLength > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	chatRes := s.limiter.Consume(request("chat:"+ident.ClientIP, chatBucketLimit, 1))
	if !chatRes.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(chatRes.RetryAfterSec))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again soon")
		return
	}

	conv, err := decodeConversation(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sanitized := policy.SanitizeConversation(conv)
	if !policy.HasUserMessage(sanitized) {
		writeError(w, http.StatusBadRequest, "no user message found")
		return
	}

	resp, herr := s.handleChat(r.Context(), logger, ident, sanitized)
	if herr != nil {
		if herr.retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(herr.retryAfter))
		}
		writeError(w, herr.status, herr.message)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleChat runs the pipeline after the transport gates have passed.
func (s *Service) handleChat(ctx context.Context, logger *slog.Logger, ident Identity, conv []policy.Message) (*Response, *httpError) {
	latest := policy.LatestUserText(conv)

	if policy.IsPromptInjection(latest) {
		logger.Info("refused prompt injection", "ip_hash", ident.IPHash)
		return refusal(refusalInjection), nil
	}
	if policy.IsHarmfulIntent(latest) {
		logger.Info("refused harmful intent", "ip_hash", ident.IPHash)
		return refusal(refusalHarm), nil
	}

	routes := s.routes()
	if len(routes) == 0 {
		logger.Error("no upstream routes configured")
		return nil, &httpError{status: http.StatusInternalServerError, message: "server configuration error"}
	}

	sem := semaphore.NewWeighted(fetchConcurrency)

	urls := ExtractURLs(latest)

	// The live-tools path replaces legacy verification entirely, but
	// only when a tools service is actually configured. Without one,
	// URL-bearing requests fall back to direct verification.
	liveRequested := NeedsLiveCheck(latest, len(urls)) && s.tools != nil && s.tools.Configured()

	var (
		toolsContext   string
		toolsDown      bool
		pendingSummary string
		urlContext     string
		verified       []VerifiedLink
	)

	if liveRequested {
		toolsContext, toolsDown = s.runLiveTools(ctx, logger, ident, latest, urls)
		if toolsDown {
			pendingSummary = s.capturePendingURLs(ctx, logger, ident, urls)
		}
	} else if s.cfg.VerifyLinks && len(urls) > 0 {
		urlRes := s.limiter.Consume(request("url:"+ident.ClientIP, urlBucketLimit, len(urls)))
		if !urlRes.Allowed {
			return nil, &httpError{
				status:     http.StatusTooManyRequests,
				message:    "rate limit exceeded for link checks",
				retryAfter: urlRes.RetryAfterSec,
			}
		}
		verified = s.verifyURLs(ctx, sem, urls, "user-url")
		urlContext = urlCheckContext(verified)
	}

	messages := make([]llm.Message, 0, len(conv)+2)
	messages = append(messages,
		llm.Message{Role: "system", Content: serverSystemPrompt},
		llm.Message{Role: "system", Content: contextMessage(s.catalogContext(ctx), urlContext, toolsContext, pendingSummary)},
	)
	for _, m := range conv {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	result, err := s.model.Complete(ctx, routes, messages)
	if err != nil {
		logger.Error("model fan-out exhausted", "error", policy.Redact(err.Error()))
		return nil, &httpError{status: http.StatusBadGateway, message: "upstream models are unavailable right now"}
	}

	text := policy.Redact(result.Text)
	if policy.ContainsPromptLeak(text, serverSystemPrompt) {
		logger.Warn("blocked prompt leak in model output", "route", result.RouteLabel)
		return refusal(refusalLeak), nil
	}

	if !liveRequested && s.cfg.CaptureCandidates && s.links != nil && s.queue != nil {
		verified = append(verified, s.captureCandidates(ctx, logger, sem, ident, text)...)
	}

	if toolsDown {
		text = ensureBanner(text, pendingSummary)
	}

	resp := &Response{AssistantText: text, RouteLabel: result.RouteLabel, VerifiedLinks: verified}
	if resp.VerifiedLinks == nil {
		resp.VerifiedLinks = []VerifiedLink{}
	}
	return resp, nil
}

// runLiveTools calls enrich for the first user URL, or search for the
// user text. A failed call with no usable items marks the request
// tools-down; successful items are applied to the store.
func (s *Service) runLiveTools(ctx context.Context, logger *slog.Logger, ident Identity, latest string, urls []string) (string, bool) {
	var payload map[string]any
	var err error
	if len(urls) > 0 {
		payload, err = s.tools.Enrich(ctx, urls[0], "chat-enrichment")
	} else {
		payload, err = s.tools.Search(ctx, latest)
	}

	items := tools.NormalizeItems(payload, 10)
	if len(items) == 0 {
		if err != nil {
			logger.Warn("live tools unavailable", "error", policy.Redact(err.Error()))
			return "", true
		}
		return "Live tools returned no matches for this request.", false
	}

	s.applyEnrichment(ctx, logger, ident, items)
	return toolsContextBlock(items), false
}

// applyEnrichment writes normalized items through: main link when the
// URL is already in the catalog, candidate otherwise, and always a
// tool-check audit row.
func (s *Service) applyEnrichment(ctx context.Context, logger *slog.Logger, ident Identity, items []tools.Item) {
	if s.links == nil {
		return
	}
	mainSet, err := s.links.GetMainURLSet(ctx)
	if err != nil {
		logger.Warn("failed to load main url set", "error", err)
		mainSet = nil
	}

	for _, item := range items {
		if mainSet[item.CanonicalURL] {
			if err := s.links.UpdateMainLinkEnrichment(ctx, mainLinkFromItem(item)); err != nil {
				logger.Warn("failed to apply enrichment to main link", "url", item.CanonicalURL, "error", err)
			}
		} else {
			if err := s.links.UpsertCandidate(ctx, candidateFromItem(item, ident, captureLiveTools)); err != nil {
				logger.Warn("failed to upsert candidate", "url", item.CanonicalURL, "error", err)
			}
		}
		if err := s.links.InsertToolCheck(ctx, item.CanonicalURL, toolCheckFromItem(item)); err != nil {
			logger.Warn("failed to insert tool check", "url", item.CanonicalURL, "error", err)
		}
	}
}

// capturePendingURLs persists user URLs for later enrichment while
// tools are down, and reports how many were saved.
func (s *Service) capturePendingURLs(ctx context.Context, logger *slog.Logger, ident Identity, urls []string) string {
	if s.links == nil || s.queue == nil || len(urls) == 0 {
		return ""
	}

	saved := 0
	for _, raw := range urls {
		canonical, err := models.CanonicalURL(raw)
		if err != nil {
			continue
		}
		cand := &models.CandidateLink{
			CanonicalURL:      canonical,
			PendingEnrichment: true,
			CaptureReason:     capturePendingToolsDown,
			DiscoveredBy:      discoveredByPipeline,
			SubmitterIPHash:   ident.IPHash,
			SubmitterSessHash: ident.SessionHash,
		}
		if err := s.links.UpsertCandidate(ctx, cand); err != nil {
			logger.Warn("failed to save pending candidate", "url", canonical, "error", err)
			continue
		}
		job := &models.QueueJob{CanonicalURL: canonical, RequestedURL: raw, Reason: jobReasonToolsDown}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			logger.Warn("failed to enqueue pending enrichment", "url", canonical, "error", err)
		}
		saved++
	}
	if saved == 0 {
		return ""
	}
	return fmt.Sprintf("Saved %d link(s) for enrichment once live search is back.", saved)
}

func (s *Service) catalogContext(ctx context.Context) string {
	if s.links == nil {
		return catalogSnippet(nil)
	}
	links, err := s.links.GetMainLinks(ctx)
	if err != nil {
		s.logger.Warn("failed to load catalog snippet", "error", err)
		return catalogSnippet(nil)
	}
	return catalogSnippet(links)
}

func (s *Service) routes() []llm.Route {
	routes := make([]llm.Route, 0, len(s.cfg.Routes))
	for _, r := range s.cfg.Routes {
		routes = append(routes, llm.Route{APIKey: r.APIKey, Model: r.Model, Label: r.Label})
	}
	return routes
}

func (s *Service) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		for _, allowed := range s.cfg.AllowedOrigins {
			if strings.EqualFold(origin, allowed) {
				return true
			}
		}
		return false
	}
	return strings.EqualFold(origin, "https://"+r.Host)
}

func decodeConversation(body []byte) ([]policy.Message, error) {
	var payload struct {
		Messages []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("messages must be a non-empty array")
	}

	conv := make([]policy.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		conv = append(conv, policy.Message{Role: m.Role, Content: llm.ContentText(m.Content)})
	}
	return conv, nil
}

// request builds a bucket consume request with the shared window.
func request(key string, limit, weight int) ratelimit.Request {
	return ratelimit.Request{Key: key, Limit: limit, Window: bucketWindow, Weight: weight}
}

func refusal(text string) *Response {
	return &Response{AssistantText: text, RouteLabel: policyRouteLabel, VerifiedLinks: []VerifiedLink{}}
}

func setSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
