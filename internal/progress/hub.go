package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: queued events before progress events start dropping (default 1024).
//   - MaxBatchEvents: flush once this many events queue (default 256).
//   - MaxBatchWait: flush a partial batch after this long (default 500ms).
//   - TerminalWait: how long Emit may block to enqueue a terminal event (default 1s).
//   - SinkTimeout: per-sink deadline while flushing (default 10s).
//   - BaseContext: parent context for sink calls (default context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	TerminalWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultTerminalWait   = time.Second
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.TerminalWait <= 0 {
		c.TerminalWait = defaultTerminalWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Hub fans job events out to observers (logs, metrics) in batches. Jobs from
// every request share one Hub.
//
// Non-terminal events are best effort: when the buffer is full they are
// dropped and counted, so a slow sink never stalls a job. Terminal events wait
// up to TerminalWait for room and flush the pending batch immediately, which
// keeps per-job accounting in the sinks balanced.
type Hub struct {
	cfg    Config
	sinks  []Sink
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *zap.Logger

	dropMu    sync.Mutex
	dropped   map[Type]int64
	lastWarn  time.Time
	closed    atomic.Bool
	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine and returns a ready Hub.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  cfg.Logger,
		dropped: make(map[Type]int64),
	}
	go h.run()
	return h
}

// Emit queues evt for the sinks. Invalid events are discarded; events without
// a timestamp are stamped with the current UTC time.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid job event", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	select {
	case h.events <- evt:
		return
	default:
	}
	if evt.Terminal() {
		timer := time.NewTimer(h.cfg.TerminalWait)
		defer timer.Stop()
		select {
		case h.events <- evt:
			return
		case <-timer.C:
		case <-h.stopCh:
		}
	}
	h.recordDrop(evt)
}

func (h *Hub) recordDrop(evt Event) {
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	h.dropped[evt.Type]++
	now := time.Now()
	if now.Sub(h.lastWarn) < dropLogInterval {
		return
	}
	h.lastWarn = now
	fields := make([]zap.Field, 0, len(h.dropped)+1)
	fields = append(fields, zap.String("job_token", evt.JobToken))
	for typ, n := range h.dropped {
		fields = append(fields, zap.Int64("dropped_"+string(typ), n))
	}
	h.logger.Warn("job events dropped due to backpressure", fields...)
}

// Dropped returns the number of events dropped per type since the Hub started.
func (h *Hub) Dropped() map[Type]int64 {
	if h == nil {
		return nil
	}
	h.dropMu.Lock()
	defer h.dropMu.Unlock()
	out := make(map[Type]int64, len(h.dropped))
	for typ, n := range h.dropped {
		out[typ] = n
	}
	return out
}

// Close stops intake, drains queued events into the sinks, closes the sinks
// and waits for the batching goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Event, 0, h.cfg.MaxBatchEvents)
	// deadline is nil while the batch is empty, which disables that case.
	var deadline <-chan time.Time
	var timer *time.Timer

	flush := func() {
		if timer != nil {
			timer.Stop()
		}
		deadline = nil
		h.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case evt := <-h.events:
			batch = append(batch, evt)
			if evt.Terminal() || len(batch) >= h.cfg.MaxBatchEvents {
				flush()
				continue
			}
			if deadline == nil {
				timer = time.NewTimer(h.cfg.MaxBatchWait)
				deadline = timer.C
			}
		case <-deadline:
			deadline = nil
			h.flush(batch)
			batch = batch[:0]
		case <-h.stopCh:
			for drained := false; !drained; {
				select {
				case evt := <-h.events:
					batch = append(batch, evt)
					if len(batch) >= h.cfg.MaxBatchEvents {
						flush()
					}
				default:
					drained = true
				}
			}
			flush()
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			h.logger.Warn("event sink consume failed", zap.Int("events", len(out)), zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("event sink close failed", zap.Error(err))
		}
	}
}
