package audit

import (
	"context"
	"log/slog"
)

// LogSink writes events as SECURITY_AUDIT log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "SECURITY_AUDIT: authorization event",
		"event", string(ev.Type),
		"id", ev.ID,
		"issuer", ev.Issuer,
		"phase", string(ev.Phase),
		"detail", ev.Detail,
	)
	return nil
}
