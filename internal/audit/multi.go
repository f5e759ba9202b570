package audit

import (
	"context"
	"errors"

	"appauth/pkg/logging"
)

// MultiSink emits to every sink in order and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record emits ev to sink and logs a failure instead of returning it.
func Record(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if err := sink.Emit(ctx, ev); err != nil {
		logging.Warn(logging.SubsystemAudit, "Failed to emit %s audit event: %v", ev.Type, err)
	}
}
