// Package cancel implements the cooperative cancellation protocol. A request
// layer writes a signal keyed by job token; running jobs poll for it. Signals
// carry their creation time and go stale after a freshness window, so a
// leftover signal never blocks a later job.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/metrics"
)

// DefaultWindow is the freshness window applied when none is configured.
const DefaultWindow = 300 * time.Second

// ErrInvalidToken rejects tokens that are not purely alphanumeric.
var ErrInvalidToken = errors.New("invalid job token")

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ValidToken reports whether token is a well-formed job token.
func ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

// Store persists cancellation signals keyed by job token.
type Store interface {
	// Create records a signal for token. Repeating it only refreshes the timestamp.
	Create(ctx context.Context, token string, at time.Time) error
	// Lookup returns the signal's creation time and whether one exists.
	Lookup(ctx context.Context, token string) (time.Time, bool, error)
	// Delete removes the signal. Deleting a missing signal is not an error.
	Delete(ctx context.Context, token string) error
	// Sweep removes signals created before cutoff and reports how many.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// Checker applies the freshness window on top of a Store.
type Checker struct {
	store  Store
	window time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// Option customises a Checker.
type Option func(*Checker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChecker builds a Checker. A non-positive window uses DefaultWindow.
func NewChecker(store Store, window time.Duration, opts ...Option) *Checker {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Checker{store: store, window: window, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request records a cancellation for token.
func (c *Checker) Request(ctx context.Context, token string) error {
	if !ValidToken(token) {
		return ErrInvalidToken
	}
	if err := c.store.Create(ctx, token, c.now().UTC()); err != nil {
		return fmt.Errorf("create cancellation signal: %w", err)
	}
	metrics.ObserveCancelSignal("create", 1)
	return nil
}

// Cancelled reports whether a fresh signal exists for token. A finished
// context also counts as cancelled. Lookup failures are logged and read as
// "not cancelled" so a flaky store never kills healthy jobs.
func (c *Checker) Cancelled(ctx context.Context, token string) bool {
	if ctx.Err() != nil {
		return true
	}
	if token == "" {
		return false
	}
	createdAt, ok, err := c.store.Lookup(ctx, token)
	if err != nil {
		c.logger.Warn("cancellation lookup failed", zap.String("job_token", token), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	return c.now().Sub(createdAt) <= c.window
}

// Clear removes the signal for token.
func (c *Checker) Clear(ctx context.Context, token string) error {
	if err := c.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("delete cancellation signal: %w", err)
	}
	metrics.ObserveCancelSignal("delete", 1)
	return nil
}

// Sweep deletes signals older than retention.
func (c *Checker) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	n, err := c.store.Sweep(ctx, c.now().Add(-retention))
	if err != nil {
		return n, fmt.Errorf("sweep cancellation signals: %w", err)
	}
	metrics.ObserveCancelSignal("sweep", n)
	return n, nil
}
