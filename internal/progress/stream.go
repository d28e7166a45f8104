package progress

import (
	"context"
	"sync"
)

// Stream is an ordered, single-consumer event channel. Emit blocks until the
// consumer takes the event or the stream's context ends, so events are never
// reordered and a departed consumer never wedges the producer.
type Stream struct {
	ctx    context.Context
	events chan Event
	once   sync.Once
}

// NewStream creates a Stream bound to ctx. buffer may be zero.
func NewStream(ctx context.Context, buffer int) *Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{ctx: ctx, events: make(chan Event, buffer)}
}

// Emit hands evt to the consumer, dropping it once the context is done.
func (s *Stream) Emit(evt Event) {
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Close ends the stream. The producer must not Emit after Close.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.events)
	})
}
