// Package ratelimit caps the request rate the scraper sends to each upstream
// host, on top of the fetch pacing delay, and holds a host back after it
// reports overload.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/area-listing-scraper/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables the
// token bucket; Throttle still applies.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// Limiter keeps one token bucket and one hold deadline per host.
type Limiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	bucket *rate.Limiter
	until  time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	rps := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		rps = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{rps: rps, burst: burst, now: time.Now, hosts: make(map[string]*hostState)}
}

// Wait blocks until the URL's host is out of any hold and a token is
// available, or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	state, hold := l.lookup(host)

	start := time.Now()
	if hold > 0 {
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("throttle wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if err := state.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, d)
	}
	return nil
}

// Throttle holds back every request to the URL's host for d. A shorter hold
// never replaces a longer one already in place.
func (l *Limiter) Throttle(rawURL string, d time.Duration) {
	if d <= 0 {
		return
	}
	host := hostOf(rawURL)
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.stateLocked(host)
	if until := l.now().Add(d); until.After(state.until) {
		state.until = until
	}
}

func (l *Limiter) lookup(host string) (*hostState, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := l.stateLocked(host)
	return state, state.until.Sub(l.now())
}

func (l *Limiter) stateLocked(host string) *hostState {
	state, ok := l.hosts[host]
	if !ok {
		state = &hostState{bucket: rate.NewLimiter(l.rps, l.burst)}
		l.hosts[host] = state
	}
	return state
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "unknown"
}
