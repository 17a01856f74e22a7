// Package tools is a thin typed client for the external enrichment/search
// service. Calls are single-shot with a bounded timeout; the queue handles
// retries, never this client.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Error kinds surfaced to callers. HTTP failures carry the status inline
// ("tools-http-502"), everything else is one of the fixed kinds.
const (
	KindNotConfigured = "tools-not-configured"
	KindTimeout       = "tools-timeout"
	KindRequestFailed = "tools-request-failed"
	KindEnrichEmpty   = "tools-enrich-empty"
)

// Error is a failed tools call.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tools: %s: %v", e.Kind, e.Err)
	}
	return "tools: " + e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the tools error kind, or "" for non-tools errors.
func KindOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Client calls the tools service over HTTP with bearer auth.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a client. Timeout is clamped to 1..20s (default 6s).
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	if timeout > 20*time.Second {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client can make calls at all.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodGet, "/health", nil)
	return err
}

// Enrich asks the service to enrich a single URL.
func (c *Client) Enrich(ctx context.Context, url, mode string) (map[string]any, error) {
	return c.call(ctx, http.MethodPost, "/enrich", map[string]any{"url": url, "mode": mode})
}

// Search runs a free-text search.
func (c *Client) Search(ctx context.Context, query string) (map[string]any, error) {
	return c.call(ctx, http.MethodPost, "/search", map[string]any{"query": query})
}

func (c *Client) call(ctx context.Context, method, path string, payload map[string]any) (map[string]any, error) {
	if !c.Configured() {
		return nil, &Error{Kind: KindNotConfigured}
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindRequestFailed, Err: err}
		}
		body = bytes.NewReader(encoded)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindRequestFailed, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, &Error{Kind: KindRequestFailed, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: fmt.Sprintf("tools-http-%d", resp.StatusCode)}
	}

	var data map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, &Error{Kind: KindRequestFailed, Err: err}
		}
	}

	// A 2xx body may still carry an upstream error marker.
	if msg, ok := data["error"].(string); ok && msg != "" {
		return nil, &Error{Kind: msg}
	}
	return data, nil
}
