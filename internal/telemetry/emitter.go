package telemetry

import (
	"context"
	"errors"

	"otp-auth/backend/internal/telemetry/domain"
)

// EventEmitter emits auth events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.AuthEvent) error
}

// Fanout emits each event to every non-nil emitter and joins their errors.
func Fanout(emitters ...EventEmitter) EventEmitter {
	var live multi
	for _, e := range emitters {
		if e != nil {
			live = append(live, e)
		}
	}
	return live
}

type multi []EventEmitter

func (m multi) Emit(ctx context.Context, event *domain.AuthEvent) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
