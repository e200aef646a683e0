package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/sitewatch/internal/progress"
)

// LogSink writes each cycle event as a structured log line. Failures log at
// warn, everything else at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger; a nil logger discards output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("cycle_id", evt.CycleID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.SiteID != "" {
			fields = append(fields, zap.String("site", evt.SiteID))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		switch evt.Stage {
		case progress.StageCycleStart:
			fields = append(fields, zap.Int("sites", evt.Total))
		case progress.StageCycleDone:
			fields = append(fields,
				zap.Int("sites", evt.Total),
				zap.Int("successful", evt.Count),
				zap.Float64("uptime_percent", evt.Uptime))
		case progress.StagePrune:
			fields = append(fields, zap.Int("deleted", evt.Count))
		case progress.StageSiteError:
			fields = append(fields, zap.String("error_kind", evt.ErrorKind))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Log(levelFor(evt.Stage), "cycle event", fields...)
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageSiteError, progress.StageSyncError, progress.StageWaitTimeout:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
