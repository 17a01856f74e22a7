// Package ratelimit implements in-process fixed-window token buckets.
//
// State is process-local. Horizontal scaling multiplies the effective
// global rate by instance count; a stricter global limit needs a shared
// store.
package ratelimit

import (
	"sync"
	"time"
)

// maxBuckets is the soft cap above which expired buckets are evicted inline.
const maxBuckets = 8000

// Request describes one consume attempt against a named bucket.
type Request struct {
	Key    string
	Limit  int
	Window time.Duration
	Weight int
}

// Result reports the outcome of a consume attempt.
type Result struct {
	Allowed       bool
	Remaining     int
	RetryAfterSec int
	ResetAt       time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window limiter keyed by string. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Consume takes weight tokens from the bucket identified by req.Key.
// Misconfigured requests (empty key, non-positive limit or window) are
// allowed unconditionally so a config mistake degrades to "no limiting"
// rather than an outage.
func (l *Limiter) Consume(req Request) Result {
	if req.Key == "" || req.Limit <= 0 || req.Window <= 0 {
		return Result{Allowed: true, Remaining: req.Limit}
	}
	weight := req.Weight
	if weight < 1 {
		weight = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.buckets) > maxBuckets {
		l.evictExpired(now)
	}

	b, ok := l.buckets[req.Key]
	if !ok || !b.resetAt.After(now) {
		b = &bucket{count: 0, resetAt: now.Add(req.Window)}
		l.buckets[req.Key] = b
	}

	if b.count+weight > req.Limit {
		retryAfter := int((b.resetAt.Sub(now) + time.Second - 1) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Result{
			Allowed:       false,
			Remaining:     req.Limit - b.count,
			RetryAfterSec: retryAfter,
			ResetAt:       b.resetAt,
		}
	}

	b.count += weight
	return Result{
		Allowed:   true,
		Remaining: req.Limit - b.count,
		ResetAt:   b.resetAt,
	}
}

// evictExpired removes every bucket whose window has passed. Caller holds mu.
func (l *Limiter) evictExpired(now time.Time) {
	for key, b := range l.buckets {
		if !b.resetAt.After(now) {
			delete(l.buckets, key)
		}
	}
}
