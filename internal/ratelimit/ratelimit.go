// Package ratelimit implements the per-(principal, route-class) token
// bucket described in spec.md §4.6, using golang.org/x/time/rate.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RouteClass names a tier of routes sharing one rate budget.
type RouteClass string

const (
	ClassPublic  RouteClass = "public"
	ClassPublish RouteClass = "publish"
)

// Limits configures capacity and refill rate for a RouteClass.
type Limits struct {
	RPS   int
	Burst int
}

// Limiter holds one token bucket per (principal, route-class).
type Limiter struct {
	mu      sync.Mutex
	limits  map[RouteClass]Limits
	buckets map[string]*rate.Limiter
}

// New builds a Limiter with the given per-class defaults.
func New(limits map[RouteClass]Limits) *Limiter {
	return &Limiter{limits: limits, buckets: make(map[string]*rate.Limiter)}
}

// Allow attempts to consume one token for (principal, class), returning
// false and a Retry-After duration on exhaustion, per spec.md §4.6.
func (l *Limiter) Allow(principal string, class RouteClass) (bool, time.Duration) {
	limiter := l.bucketFor(principal, class)
	r := limiter.Reserve()
	if !r.OK() {
		return false, 0
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return false, delay
	}
	return true, 0
}

func (l *Limiter) bucketFor(principal string, class RouteClass) *rate.Limiter {
	key := string(class) + "|" + principal

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	cfg := l.limits[class]
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RPS
	}
	b := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	l.buckets[key] = b
	return b
}

// Principal resolves the rate-limit identity for r: API key if present,
// else client IP, per spec.md §4.6.
func Principal(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	host := r.RemoteAddr
	if idx := lastColon(host); idx >= 0 {
		host = host[:idx]
	}
	return "ip:" + host
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
