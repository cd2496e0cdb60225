package audit

import (
	"log/slog"
)

// EventEmitter accepts structured audit events for recording.
type EventEmitter interface {
	Emit(Event) error
}

// NopEmitter discards all events. Use when no audit backend is configured.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) error { return nil }

// MultiEmitter fans audit events out to one or more backends. Emit failures
// are logged but never propagated; audit must not block or fail requests.
type MultiEmitter struct {
	backends []EventEmitter
	logger   *slog.Logger
}

// NewMultiEmitter creates an emitter that forwards events to the given backends.
// If logger is nil, slog.Default() is used for error reporting.
func NewMultiEmitter(logger *slog.Logger, backends ...EventEmitter) *MultiEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiEmitter{
		backends: backends,
		logger:   logger,
	}
}

// Emit writes the event to all backends, logging (not returning) failures.
func (e *MultiEmitter) Emit(ev Event) error {
	for _, b := range e.backends {
		if err := b.Emit(ev); err != nil {
			e.logger.Error("audit emit failed", "event", ev.Type, "error", err)
		}
	}
	return nil
}
