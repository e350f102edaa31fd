package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/progress"
)

// LogSink emits one structured line per progress event. It is the default
// when no terminal is attached.
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
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("succeeded", evt.Succeeded),
			zap.Int("failed", evt.Failed),
			zap.Int("total", evt.Total),
		}
		switch evt.Stage {
		case progress.StageTaskDone:
			fields = append(fields,
				zap.String("target", evt.Target),
				zap.Bool("success", evt.Success),
				zap.Duration("duration", evt.Dur),
			)
			if evt.Success {
				fields = append(fields, zap.String("artifact", evt.Artifact))
				s.logger.Info("screenshot captured", fields...)
			} else {
				fields = append(fields, zap.String("error", evt.Note))
				s.logger.Warn("screenshot failed", fields...)
			}
		case progress.StageRunDone:
			fields = append(fields, zap.Duration("elapsed", evt.Dur))
			s.logger.Info("run complete", fields...)
		default:
			s.logger.Info("run started", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
