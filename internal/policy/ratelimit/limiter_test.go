package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSecondRequest(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: the second token arrives ~100ms after the first.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://listing.test/area"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://listing.test/area/PN2.html"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.test/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.test/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "host b blocked by host a")
}

func TestLimiterUnlimitedByDefault(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Wait(ctx, "https://a.test/1"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.test"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://slow.test"))
}

func TestLimiterThrottleHoldsHost(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	l.Throttle("https://busy.test/a", 60*time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://busy.test/b"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	start = time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://other.test/"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "throttle is per host")
}

func TestLimiterThrottleKeepsLongerHold(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	l := New(Config{})
	l.now = func() time.Time { return now }

	l.Throttle("https://busy.test/", time.Minute)
	l.Throttle("https://busy.test/", time.Second)
	_, hold := l.lookup("busy.test")
	require.Equal(t, time.Minute, hold)

	l.Throttle("https://busy.test/", 0)
	_, hold = l.lookup("busy.test")
	require.Equal(t, time.Minute, hold)
}

func TestLimiterThrottleHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	l.Throttle("https://busy.test/", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://busy.test/")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
