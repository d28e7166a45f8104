package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

// LogSink emits structured logs for every job event. Progress counters are
// logged at debug level so long jobs do not flood info output.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		data, err := evt.Data()
		if err != nil {
			data = err.Error()
		}
		fields := []zap.Field{
			zap.String("job_token", evt.JobToken),
			zap.String("type", string(evt.Type)),
			zap.Time("ts", evt.TS),
			zap.String("data", data),
		}
		switch evt.Type {
		case progress.TypeURLProgress, progress.TypeProgress:
			s.logger.Debug("job event", fields...)
		case progress.TypeError, progress.TypeAborted:
			s.logger.Warn("job event", fields...)
		default:
			s.logger.Info("job event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
