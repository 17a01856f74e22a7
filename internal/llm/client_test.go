package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testClient(url string) *Client {
	c := New("https://aicenghub.top", "AICENGHUB", nil)
	c.endpoint = url
	return c
}

func TestCompleteNoRoutes(t *testing.T) {
	c := testClient("http://unused")
	_, err := c.Complete(context.Background(), nil, []Message{{Role: "user", Content: "hi"}})
	if KindOf(err) != KindNoRoutes {
		t.Errorf("kind = %q, want %q", KindOf(err), KindNoRoutes)
	}
}

func TestCompleteFirstRouteWins(t *testing.T) {
	var gotAuth, gotReferer, gotTitle string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	routes := []Route{
		{APIKey: "k1", Model: "openrouter/auto", Label: "primary"},
		{APIKey: "k2", Model: "fallback", Label: "secondary"},
	}
	res, err := c.Complete(context.Background(), routes, []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete error = %v", err)
	}
	if res.Text != "hello there" || res.RouteLabel != "primary" {
		t.Errorf("res = %+v, want primary's text", res)
	}
	if gotAuth != "Bearer k1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReferer != "https://aicenghub.top" || gotTitle != "AICENGHUB" {
		t.Errorf("referer/title = %q/%q", gotReferer, gotTitle)
	}
}

func TestCompleteFailover(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"second"}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	routes := []Route{
		{APIKey: "k1", Model: "m1", Label: "primary"},
		{APIKey: "k2", Model: "m2", Label: "secondary"},
	}
	res, err := c.Complete(context.Background(), routes, []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete error = %v", err)
	}
	if res.RouteLabel != "secondary" || res.Text != "second" {
		t.Errorf("res = %+v, want secondary", res)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (sequential failover)", calls)
	}
}

func TestCompleteAllRoutesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Complete(context.Background(), []Route{{APIKey: "bad", Model: "m", Label: "primary"}}, nil)
	if KindOf(err) != KindAllFailed {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindAllFailed)
	}
	if !strings.Contains(err.Error(), "invalid key or unauthorized model") {
		t.Errorf("err = %v, want status-specific message", err)
	}
}

func TestCompleteEmptyAssistantText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Complete(context.Background(), []Route{{APIKey: "k", Model: "m", Label: "primary"}}, nil)
	if KindOf(err) != KindAllFailed {
		t.Fatalf("kind = %q, want all-routes-failed wrapping", KindOf(err))
	}
	if !strings.Contains(err.Error(), KindEmptyResponse) {
		t.Errorf("err = %v, want empty-assistant-response cause", err)
	}
}

func TestCompleteTextPartsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	res, err := c.Complete(context.Background(), []Route{{APIKey: "k", Model: "m", Label: "primary"}}, nil)
	if err != nil {
		t.Fatalf("Complete error = %v", err)
	}
	if res.Text != "part one\npart two" {
		t.Errorf("Text = %q, want parts joined with newline", res.Text)
	}
}

func TestRouteErrorMessage(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{401, ``, "invalid key or unauthorized model"},
		{403, `{}`, "invalid key or unauthorized model"},
		{402, ``, "insufficient credits on this route"},
		{429, ``, "provider-rate-limited"},
		{503, ``, "HTTP 503"},
		{500, `{"error":{"message":"model overloaded"}}`, "model overloaded"},
	}
	for _, tt := range tests {
		if got := routeErrorMessage(tt.status, []byte(tt.body)); got != tt.want {
			t.Errorf("routeErrorMessage(%d, %q) = %q, want %q", tt.status, tt.body, got, tt.want)
		}
	}
}

func TestContentText(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hi", "hi"},
		{"text object", map[string]any{"text": "hi"}, "hi"},
		{"parts", []any{map[string]any{"text": "a"}, "b"}, "a\nb"},
		{"nested content", map[string]any{"content": "inner"}, "inner"},
		{"unsupported", 42, ""},
	}
	for _, tt := range tests {
		if got := ContentText(tt.in); got != tt.want {
			t.Errorf("%s: ContentText = %q, want %q", tt.name, got, tt.want)
		}
	}
}
