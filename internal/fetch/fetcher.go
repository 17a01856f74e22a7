// Package fetch performs single outbound HTTP(S) requests with SSRF
// protection: URL normalization, DNS gating against private ranges, explicit
// redirect handling, and byte/time/content-type budgets. Redirects are never
// followed by the underlying client; every hop re-runs the full safety check.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrorKind discriminates fetch failures. Callers treat these as per-hop
// observations; nothing is retried inside the fetcher.
type ErrorKind string

const (
	ErrInvalidURL              ErrorKind = "invalid-url"
	ErrUnsupportedProtocol     ErrorKind = "unsupported-protocol"
	ErrMissingHostname         ErrorKind = "missing-hostname"
	ErrBlockedPort             ErrorKind = "blocked-port"
	ErrBlockedHostname         ErrorKind = "blocked-hostname"
	ErrBlockedIP               ErrorKind = "blocked-ip"
	ErrBlockedResolvedIP       ErrorKind = "blocked-resolved-ip"
	ErrDNSNoRecords            ErrorKind = "dns-no-records"
	ErrTimeoutTotal            ErrorKind = "timeout-total"
	ErrRedirectMissingLocation ErrorKind = "redirect-missing-location"
	ErrRedirectLimitExceeded   ErrorKind = "redirect-limit-exceeded"
	ErrRedirectCrossProtocol   ErrorKind = "redirect-cross-protocol-blocked"
	ErrDisallowedContentType   ErrorKind = "disallowed-content-type"
	ErrResponseTooLarge        ErrorKind = "response-too-large"
	ErrRequestFailed           ErrorKind = "request-failed"
)

// Error is a fetch failure with its kind and the URL being fetched.
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err if it is a fetch error.
func KindOf(err error) ErrorKind {
	if fe, ok := err.(*Error); ok {
		return fe.Kind
	}
	return ""
}

// ResolveFunc looks up all addresses for a hostname, in resolver order.
type ResolveFunc func(ctx context.Context, host string) ([]net.IP, error)

// DoFunc issues one HTTP request without following redirects.
type DoFunc func(req *http.Request) (*http.Response, error)

// Options configures a fetch. The zero value gives the production defaults;
// Resolve and Do exist so tests can substitute a synthetic network.
type Options struct {
	Method              string
	MaxRedirects        *int // nil = 4; clamped to 0..6
	MaxBytes            int64
	TotalTimeout        time.Duration
	HopTimeout          time.Duration
	AllowedPorts        []int
	AllowedContentTypes []string
	Headers             map[string]string
	Resolve             ResolveFunc
	Do                  DoFunc
}

// Result is a completed fetch.
type Result struct {
	OK            bool
	Status        int
	FinalURL      string
	ContentType   string
	Body          string
	RedirectChain []string
}

// Header names never forwarded to the target.
var strippedHeaders = map[string]bool{
	"cookie":              true,
	"set-cookie":          true,
	"authorization":       true,
	"proxy-authorization": true,
}

// redirectStatuses the fetcher will follow.
var redirectStatuses = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

var defaultClient = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	},
}

func (o *Options) withDefaults() Options {
	out := *o
	out.Method = strings.ToUpper(strings.TrimSpace(out.Method))
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	if out.MaxRedirects == nil {
		four := 4
		out.MaxRedirects = &four
	}
	if *out.MaxRedirects < 0 {
		zero := 0
		out.MaxRedirects = &zero
	}
	if *out.MaxRedirects > 6 {
		six := 6
		out.MaxRedirects = &six
	}
	if out.MaxBytes < 1024 {
		if out.MaxBytes <= 0 {
			out.MaxBytes = 1_000_000
		} else {
			out.MaxBytes = 1024
		}
	}
	if out.TotalTimeout <= 0 {
		out.TotalTimeout = 7 * time.Second
	} else if out.TotalTimeout < time.Second {
		out.TotalTimeout = time.Second
	}
	if out.HopTimeout <= 0 {
		out.HopTimeout = 4 * time.Second
	} else if out.HopTimeout < 500*time.Millisecond {
		out.HopTimeout = 500 * time.Millisecond
	}
	if len(out.AllowedPorts) == 0 {
		out.AllowedPorts = []int{80, 443, 8080}
	}
	if len(out.AllowedContentTypes) == 0 {
		out.AllowedContentTypes = []string{"text/html", "text/plain", "application/json"}
	}
	if out.Resolve == nil {
		out.Resolve = func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			return ips, nil
		}
	}
	if out.Do == nil {
		out.Do = defaultClient.Do
	}
	return out
}

// Fetch performs one guarded request, following up to MaxRedirects hops.
func Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	o := opts.withDefaults()
	start := time.Now()

	current, err := normalizeAndCheck(ctx, rawURL, o)
	if err != nil {
		return nil, err
	}

	method := o.Method
	var chain []string

	for hop := 0; ; hop++ {
		remaining := o.TotalTimeout - time.Since(start)
		if remaining <= 0 {
			return nil, &Error{Kind: ErrTimeoutTotal, URL: current.String()}
		}
		budget := o.HopTimeout
		if remaining < budget {
			budget = remaining
		}

		hopCtx, cancel := context.WithTimeout(ctx, budget)
		resp, err := issueRequest(hopCtx, method, current, o)
		if err != nil {
			cancel()
			if hopCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, &Error{Kind: ErrTimeoutTotal, URL: current.String(), Err: err}
			}
			return nil, &Error{Kind: ErrRequestFailed, URL: current.String(), Err: err}
		}

		if redirectStatuses[resp.StatusCode] {
			location := resp.Header.Get("Location")
			drain(resp)
			cancel()
			if location == "" {
				return nil, &Error{Kind: ErrRedirectMissingLocation, URL: current.String()}
			}
			nextRef, err := url.Parse(location)
			if err != nil {
				return nil, &Error{Kind: ErrInvalidURL, URL: location, Err: err}
			}
			if hop+1 > *o.MaxRedirects {
				return nil, &Error{Kind: ErrRedirectLimitExceeded, URL: current.String()}
			}
			next, err := normalizeAndCheck(ctx, current.ResolveReference(nextRef).String(), o)
			if err != nil {
				return nil, err
			}
			if next.Scheme != current.Scheme {
				return nil, &Error{Kind: ErrRedirectCrossProtocol, URL: next.String()}
			}
			if resp.StatusCode == 303 && method != http.MethodHead {
				method = http.MethodGet
			}
			chain = append(chain, next.String())
			current = next
			continue
		}

		result, err := readTerminal(resp, method, current, o)
		cancel()
		if err != nil {
			return nil, err
		}
		result.RedirectChain = chain
		return result, nil
	}
}

// normalizeAndCheck runs the parse, port, and host-safety gates for one hop.
func normalizeAndCheck(ctx context.Context, rawURL string, o Options) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &Error{Kind: ErrInvalidURL, URL: rawURL, Err: err}
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, &Error{Kind: ErrUnsupportedProtocol, URL: rawURL}
	}
	parsed.Scheme = scheme
	parsed.User = nil
	parsed.Fragment = ""
	if parsed.Hostname() == "" {
		return nil, &Error{Kind: ErrMissingHostname, URL: rawURL}
	}

	port := effectivePort(parsed)
	if !containsInt(o.AllowedPorts, port) {
		return nil, &Error{Kind: ErrBlockedPort, URL: parsed.String()}
	}

	hostname := parsed.Hostname()
	if isBlockedHostname(hostname) {
		return nil, &Error{Kind: ErrBlockedHostname, URL: parsed.String()}
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if isBlockedIP(ip) {
			return nil, &Error{Kind: ErrBlockedIP, URL: parsed.String()}
		}
		return parsed, nil
	}

	ips, err := o.Resolve(ctx, hostname)
	if err != nil {
		return nil, &Error{Kind: ErrDNSNoRecords, URL: parsed.String(), Err: err}
	}
	if len(ips) == 0 {
		return nil, &Error{Kind: ErrDNSNoRecords, URL: parsed.String()}
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return nil, &Error{Kind: ErrBlockedResolvedIP, URL: parsed.String()}
		}
	}
	return parsed, nil
}

func issueRequest(ctx context.Context, method string, target *url.URL, o Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "aicenghub-linkcheck/1.0")
	req.Header.Set("Accept", "text/html,text/plain,application/json;q=0.9,*/*;q=0.5")
	for name, value := range o.Headers {
		if strippedHeaders[strings.ToLower(name)] {
			continue
		}
		req.Header.Set(name, value)
	}
	return o.Do(req)
}

// readTerminal enforces the content-type gate and byte budget, streaming the
// body and cancelling as soon as it exceeds MaxBytes.
func readTerminal(resp *http.Response, method string, current *url.URL, o Options) (*Result, error) {
	defer drain(resp)

	contentType := parseContentType(resp.Header.Get("Content-Type"))
	result := &Result{
		OK:          resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:      resp.StatusCode,
		FinalURL:    current.String(),
		ContentType: contentType,
	}

	if method == http.MethodHead {
		return result, nil
	}

	if contentType != "" && !containsString(o.AllowedContentTypes, contentType) {
		return nil, &Error{Kind: ErrDisallowedContentType, URL: current.String()}
	}

	limited := io.LimitReader(resp.Body, o.MaxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &Error{Kind: ErrRequestFailed, URL: current.String(), Err: err}
	}
	if int64(len(body)) > o.MaxBytes {
		return nil, &Error{Kind: ErrResponseTooLarge, URL: current.String()}
	}
	result.Body = string(body)
	return result, nil
}

// parseContentType returns the lowercased type/subtype before any parameters.
func parseContentType(header string) string {
	mediaType := header
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func effectivePort(u *url.URL) int {
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return -1
		}
		return port
	}
	if u.Scheme == "https" {
		return 443
	}
	return 80
}

func containsInt(values []int, v int) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}
}
