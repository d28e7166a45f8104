// Package dispatcher fans work items out to a bounded pool of goroutines and
// hands results back in completion order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPanic wraps a value recovered from a panicking task.
var ErrPanic = errors.New("task panicked")

// Result carries one task's outcome alongside its input.
type Result[In, Out any] struct {
	Input In
	Value Out
	Err   error
}

// Task processes one input.
type Task[In, Out any] func(ctx context.Context, in In) (Out, error)

// Batch is an in-progress fan-out over a fixed input slice.
type Batch[In, Out any] struct {
	results chan Result[In, Out]
	stop    chan struct{}
	once    sync.Once
	done    chan struct{}
}

// Run dispatches every input to task with at most workers tasks in flight.
// Results are delivered on Results() in completion order; the channel closes
// once every dispatched task has finished. Stop prevents further dispatch but
// lets tasks already running finish; their results are buffered so a caller
// that stops draining never blocks a worker.
func Run[In, Out any](ctx context.Context, workers int, inputs []In, task Task[In, Out]) *Batch[In, Out] {
	if workers <= 0 {
		workers = 1
	}
	b := &Batch[In, Out]{
		results: make(chan Result[In, Out], len(inputs)),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.dispatch(ctx, workers, inputs, task)
	return b
}

func (b *Batch[In, Out]) dispatch(ctx context.Context, workers int, inputs []In, task Task[In, Out]) {
	defer close(b.done)
	defer close(b.results)

	var g errgroup.Group
	g.SetLimit(workers)
	for _, in := range inputs {
		if b.stopped(ctx) {
			break
		}
		g.Go(func() error {
			out, err := invoke(ctx, task, in)
			b.results <- Result[In, Out]{Input: in, Value: out, Err: err}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks report through results, never through the group
}

func (b *Batch[In, Out]) stopped(ctx context.Context) bool {
	select {
	case <-b.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Results returns the completion-ordered result channel.
func (b *Batch[In, Out]) Results() <-chan Result[In, Out] {
	return b.results
}

// Stop abandons inputs that have not been dispatched yet. It is idempotent.
func (b *Batch[In, Out]) Stop() {
	b.once.Do(func() {
		close(b.stop)
	})
}

// Wait blocks until every dispatched task has finished.
func (b *Batch[In, Out]) Wait() {
	<-b.done
}

func invoke[In, Out any](ctx context.Context, task Task[In, Out], in In) (out Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return task(ctx, in)
}
