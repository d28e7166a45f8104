package progress

import "context"

// Sink consumes batches of progress events. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. The coordinator writes to an Emitter
// and stays agnostic about whether events go to a caller, a hub, or both.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(evt Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) {
	f(evt)
}

// Tee returns an Emitter that forwards every event to each emitter in order.
// Nil emitters are skipped.
func Tee(emitters ...Emitter) Emitter {
	out := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return teeEmitter(out)
}

type teeEmitter []Emitter

func (t teeEmitter) Emit(evt Event) {
	for _, e := range t {
		e.Emit(evt)
	}
}
