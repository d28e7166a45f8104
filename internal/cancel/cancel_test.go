package cancel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/area-listing-scraper/internal/cancel"
	"github.com/JakeFAU/area-listing-scraper/internal/cancel/memory"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newChecker(window time.Duration) (*cancel.Checker, *manualClock, *memory.Store) {
	clock := &manualClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	store := memory.New()
	return cancel.NewChecker(store, window, cancel.WithClock(clock.Now)), clock, store
}

func TestValidToken(t *testing.T) {
	t.Parallel()

	assert.True(t, cancel.ValidToken("3f2a9c0b7e8d4f1a"))
	assert.True(t, cancel.ValidToken("ABCdef123"))
	assert.False(t, cancel.ValidToken(""))
	assert.False(t, cancel.ValidToken("../etc/passwd"))
	assert.False(t, cancel.ValidToken("abc-123"))
	assert.False(t, cancel.ValidToken("abc 123"))
}

func TestCheckerFreshnessWindow(t *testing.T) {
	t.Parallel()

	checker, clock, _ := newChecker(300 * time.Second)
	ctx := context.Background()

	assert.False(t, checker.Cancelled(ctx, "tok"))
	require.NoError(t, checker.Request(ctx, "tok"))
	assert.True(t, checker.Cancelled(ctx, "tok"))

	clock.Advance(300 * time.Second)
	assert.True(t, checker.Cancelled(ctx, "tok"), "window boundary is inclusive")

	clock.Advance(time.Second)
	assert.False(t, checker.Cancelled(ctx, "tok"), "stale signals are ignored")
}

func TestCheckerRequestIsIdempotent(t *testing.T) {
	t.Parallel()

	checker, _, store := newChecker(time.Minute)
	ctx := context.Background()

	require.NoError(t, checker.Request(ctx, "tok"))
	require.NoError(t, checker.Request(ctx, "tok"))
	assert.True(t, checker.Cancelled(ctx, "tok"))

	require.NoError(t, checker.Clear(ctx, "tok"))
	_, ok, err := store.Lookup(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, checker.Cancelled(ctx, "tok"))
}

func TestCheckerRejectsInvalidTokens(t *testing.T) {
	t.Parallel()

	checker, _, store := newChecker(time.Minute)
	err := checker.Request(context.Background(), "bad/token")
	require.ErrorIs(t, err, cancel.ErrInvalidToken)

	n, err := store.Sweep(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "nothing reached the store")
}

func TestCheckerFinishedContext(t *testing.T) {
	t.Parallel()

	checker, _, _ := newChecker(time.Minute)
	ctx, stop := context.WithCancel(context.Background())
	stop()
	assert.True(t, checker.Cancelled(ctx, "tok"))
}

func TestCheckerSweep(t *testing.T) {
	t.Parallel()

	checker, clock, store := newChecker(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, "old", clock.Now().Add(-48*time.Hour)))
	require.NoError(t, store.Create(ctx, "new", clock.Now().Add(-time.Hour)))

	n, err := checker.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := store.Lookup(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

type brokenStore struct{ memory.Store }

func (*brokenStore) Lookup(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("connection refused")
}

func TestCheckerLookupErrorIsNotCancellation(t *testing.T) {
	t.Parallel()

	checker := cancel.NewChecker(&brokenStore{}, 0)
	assert.False(t, checker.Cancelled(context.Background(), "tok"))
}
