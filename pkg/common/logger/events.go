package logger

import (
	"context"
	"log/slog"
)

// EventFn is invoked after a log record at the matching level is handled,
// useful for wiring metrics counters to log volume (e.g. error-log rate).
type EventFn func(ctx context.Context, r slog.Record)

// Events holds optional hooks fired alongside the corresponding log level.
type Events struct {
	Debug EventFn
	Info  EventFn
	Warn  EventFn
	Error EventFn
}

// eventHandler wraps a slog.Handler and fires the configured Events hook
// after delegating the record to the wrapped handler.
type eventHandler struct {
	slog.Handler
	events Events
}

func newLogHandler(h slog.Handler, events Events) slog.Handler {
	return &eventHandler{Handler: h, events: events}
}

func (h *eventHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}

	var fn EventFn
	switch slog.Level(r.Level) {
	case slog.LevelDebug:
		fn = h.events.Debug
	case slog.LevelInfo:
		fn = h.events.Info
	case slog.LevelWarn:
		fn = h.events.Warn
	case slog.LevelError:
		fn = h.events.Error
	}
	if fn != nil {
		fn(ctx, r)
	}
	return nil
}

func (h *eventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &eventHandler{Handler: h.Handler.WithAttrs(attrs), events: h.events}
}

func (h *eventHandler) WithGroup(name string) slog.Handler {
	return &eventHandler{Handler: h.Handler.WithGroup(name), events: h.events}
}
