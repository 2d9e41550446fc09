package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/progress"
)

// LogSink emits structured logs for harvest progress streams. It doubles as
// the operator-facing status line between chunks.
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

// Consume logs each event in the batch using structured fields. Per-fetch
// events log at debug to keep the default output readable.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageFetchDone:
			fields = append(fields,
				zap.Int64("app_id", int64(evt.AppID)),
				zap.String("outcome", string(evt.Outcome)),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Debug("progress event", fields...)
			continue
		case progress.StageChunkStart, progress.StageChunkDone:
			fields = append(fields,
				zap.Int("remaining", evt.Remaining),
				zap.Int("chunk_size", evt.ChunkSize),
				zap.String("state", evt.State),
				zap.Int("concurrency", evt.Concurrency),
				zap.Duration("delay", evt.Delay),
				zap.Float64("rate_limited_pct", evt.RateLimitedPct),
			)
		case progress.StageHibernate:
			fields = append(fields, zap.Duration("cooldown", evt.Cooldown))
		case progress.StageHarvestStart, progress.StageHarvestDone:
			fields = append(fields, zap.Int("remaining", evt.Remaining))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
