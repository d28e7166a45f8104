package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/metrics"
)

// FetchConfig controls retries and pacing.
type FetchConfig struct {
	// Attempts is the maximum number of GETs per fetch.
	Attempts int
	// Wait is the pause after every attempt, successful or not.
	Wait time.Duration
	// Throttle is how long the limiter holds a host back after a 429 or 503.
	// Zero disables throttling.
	Throttle time.Duration
}

// PacedFetcher wraps a Getter with bounded retries, an unconditional pause
// after every attempt, and a cancellation check before every attempt.
type PacedFetcher struct {
	getter  Getter
	cancel  CancelChecker
	limiter Limiter
	cfg     FetchConfig
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPacedFetcher builds a PacedFetcher. limiter may be nil.
func NewPacedFetcher(getter Getter, cancel CancelChecker, limiter Limiter, cfg FetchConfig, logger *zap.Logger) *PacedFetcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PacedFetcher{
		getter:  getter,
		cancel:  cancel,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Fetch returns the page at url. It returns ErrCancelled when a cancellation
// signal for token is seen before an attempt or the context ends, and
// ErrUpstreamUnreachable once every attempt has failed.
func (f *PacedFetcher) Fetch(ctx context.Context, url, token string) (Page, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.Attempts; attempt++ {
		if f.cancel != nil && f.cancel.Cancelled(ctx, token) {
			return Page{}, ErrCancelled
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, url); err != nil {
				return Page{}, fmt.Errorf("%w: %w", ErrCancelled, err)
			}
		}

		page, err := f.attempt(ctx, url)
		if pauseErr := f.sleep(ctx, f.cfg.Wait); pauseErr != nil {
			return Page{}, fmt.Errorf("%w: %w", ErrCancelled, pauseErr)
		}
		if err == nil {
			return page, nil
		}
		lastErr = err
		f.throttle(url, err)
		f.logger.Warn("fetch attempt failed",
			zap.String("job_token", token),
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("attempts", f.cfg.Attempts),
			zap.Error(err),
		)
	}
	f.logger.Error("fetch gave up",
		zap.String("job_token", token),
		zap.String("url", url),
		zap.Int("attempts", f.cfg.Attempts),
		zap.Error(lastErr),
	)
	return Page{}, fmt.Errorf("%w: %s after %d attempts: %w", ErrUpstreamUnreachable, url, f.cfg.Attempts, lastErr)
}

func (f *PacedFetcher) attempt(ctx context.Context, url string) (Page, error) {
	start := time.Now()
	page, err := f.getter.Get(ctx, url)
	elapsed := time.Since(start)
	switch {
	case err != nil:
		metrics.ObserveFetch(url, "error", 0, elapsed)
		return Page{}, err
	case page.StatusCode < 200 || page.StatusCode > 299:
		metrics.ObserveFetch(url, "status", len(page.Body), elapsed)
		return Page{}, &StatusError{URL: url, StatusCode: page.StatusCode}
	default:
		metrics.ObserveFetch(url, "success", len(page.Body), elapsed)
		if page.FinalURL == "" {
			page.FinalURL = url
		}
		return page, nil
	}
}

func (f *PacedFetcher) throttle(url string, err error) {
	if f.cfg.Throttle <= 0 {
		return
	}
	t, ok := f.limiter.(Throttler)
	if !ok {
		return
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return
	}
	switch statusErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		t.Throttle(url, f.cfg.Throttle)
	}
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pacing interrupted: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
