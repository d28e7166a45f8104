package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunDeliversEveryResult ensures each input yields exactly one result.
func TestRunDeliversEveryResult(t *testing.T) {
	t.Parallel()

	inputs := []int{1, 2, 3, 4, 5, 6, 7}
	batch := Run(context.Background(), 3, inputs, func(_ context.Context, in int) (int, error) {
		return in * 10, nil
	})

	seen := map[int]int{}
	for res := range batch.Results() {
		require.NoError(t, res.Err)
		seen[res.Input] = res.Value
	}
	require.Len(t, seen, len(inputs))
	for _, in := range inputs {
		assert.Equal(t, in*10, seen[in])
	}
}

// TestRunRespectsWorkerLimit verifies no more than the configured number of tasks run at once.
func TestRunRespectsWorkerLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	inputs := make([]int, 20)
	batch := Run(context.Background(), 2, inputs, func(_ context.Context, _ int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	count := 0
	for range batch.Results() {
		count++
	}
	require.Equal(t, 20, count)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

// TestRunCompletionOrder shows faster tasks are reported first.
func TestRunCompletionOrder(t *testing.T) {
	t.Parallel()

	delays := []time.Duration{60 * time.Millisecond, time.Millisecond}
	batch := Run(context.Background(), 2, delays, func(_ context.Context, d time.Duration) (time.Duration, error) {
		time.Sleep(d)
		return d, nil
	})
	first := <-batch.Results()
	require.Equal(t, time.Millisecond, first.Value)
}

// TestRunRecoversPanics converts a panicking task into an error result.
func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	batch := Run(context.Background(), 1, []string{"boom", "ok"}, func(_ context.Context, in string) (string, error) {
		if in == "boom" {
			panic("kaboom")
		}
		return in, nil
	})
	var errs int
	for res := range batch.Results() {
		if res.Err != nil {
			errs++
			require.ErrorIs(t, res.Err, ErrPanic)
			require.Equal(t, "boom", res.Input)
		}
	}
	require.Equal(t, 1, errs)
}

// TestStopAbandonsPendingInputs ensures undispatched work never starts after Stop.
func TestStopAbandonsPendingInputs(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var started atomic.Int32
	inputs := make([]int, 10)
	batch := Run(context.Background(), 1, inputs, func(_ context.Context, _ int) (int, error) {
		started.Add(1)
		<-release
		return 0, nil
	})

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)
	batch.Stop()
	batch.Stop()
	close(release)
	batch.Wait()

	// The dispatcher may already be blocked handing out the second input.
	require.LessOrEqual(t, started.Load(), int32(2))
	count := 0
	for range batch.Results() {
		count++
	}
	require.Equal(t, int(started.Load()), count)
}

// TestRunCarriesTaskErrors passes task errors through untouched.
func TestRunCarriesTaskErrors(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("nope")
	batch := Run(context.Background(), 0, []int{1}, func(_ context.Context, _ int) (int, error) {
		return 0, sentinel
	})
	res := <-batch.Results()
	require.ErrorIs(t, res.Err, sentinel)
}
