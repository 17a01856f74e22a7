// Package llm calls the upstream OpenRouter chat-completions API with
// ordered failover across configured routes.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// ChatCompletionsURL is the upstream chat endpoint.
	ChatCompletionsURL = "https://openrouter.ai/api/v1/chat/completions"

	// RouteTimeout bounds a single route attempt.
	RouteTimeout = 30 * time.Second
)

// Error kinds surfaced to the pipeline.
const (
	KindNoRoutes      = "no-routes-configured"
	KindAllFailed     = "all-routes-failed"
	KindEmptyResponse = "empty-assistant-response"
)

// Error is a fan-out failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
	}
	return "llm: " + e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the llm error kind, or "" for non-llm errors.
func KindOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// Route is one upstream attempt: an API key, a model, and a label
// echoed back to the caller on success.
type Route struct {
	APIKey string
	Model  string
	Label  string
}

// Message is an outbound chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Result is a successful completion.
type Result struct {
	Text       string
	RouteLabel string
}

// Client fans a conversation out across routes in order. Only the
// first successful route's output is returned.
type Client struct {
	endpoint   string
	referer    string
	title      string
	logger     *slog.Logger
	httpClient *http.Client
}

// New creates a client. referer and title are sent as the HTTP-Referer
// and X-Title headers on every attempt.
func New(referer, title string, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   ChatCompletionsURL,
		referer:    referer,
		title:      title,
		logger:     logger,
		httpClient: &http.Client{Timeout: RouteTimeout},
	}
}

// Complete tries each route in order and returns the first success.
// A later route is attempted only after the previous one failed.
func (c *Client) Complete(ctx context.Context, routes []Route, messages []Message) (*Result, error) {
	if len(routes) == 0 {
		return nil, &Error{Kind: KindNoRoutes}
	}

	var lastErr error
	for _, route := range routes {
		text, err := c.callRoute(ctx, route, messages)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("upstream route failed", "route", route.Label, "model", route.Model, "error", err)
			}
			lastErr = err
			continue
		}
		return &Result{Text: text, RouteLabel: route.Label}, nil
	}
	return nil, &Error{Kind: KindAllFailed, Err: lastErr}
}

func (c *Client) callRoute(ctx context.Context, route Route, messages []Message) (string, error) {
	reqBody := map[string]any{
		"model":    route.Model,
		"messages": messages,
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, RouteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+route.APIKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.New(routeErrorMessage(resp.StatusCode, body))
	}

	text, err := parseAssistantText(body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindEmptyResponse}
	}
	return text, nil
}

// routeErrorMessage prefers the upstream error.message, then falls
// back to a status-specific string.
func routeErrorMessage(status int, body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error.Message) != "" {
		return payload.Error.Message
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "invalid key or unauthorized model"
	case http.StatusPaymentRequired:
		return "insufficient credits on this route"
	case http.StatusTooManyRequests:
		return "provider-rate-limited"
	default:
		return fmt.Sprintf("HTTP %d", status)
	}
}

func parseAssistantText(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindEmptyResponse}
	}
	return ContentText(resp.Choices[0].Message.Content), nil
}

// ContentText flattens the message-content sum type: a plain string,
// an array of text parts, or a {text} object. Multi-part content is
// joined with newlines.
func ContentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var parts []string
		for _, entry := range v {
			if s := ContentText(entry); strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		if s, ok := v["text"].(string); ok {
			return s
		}
		if inner, ok := v["content"]; ok {
			return ContentText(inner)
		}
	}
	return ""
}
