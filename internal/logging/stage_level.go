package logging

import (
	"context"
	"log/slog"
)

// gateHandler drops records below min before they reach next.
type gateHandler struct {
	next slog.Handler
	min  slog.Level
}

func (h gateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.next.Enabled(ctx, level)
}

func (h gateHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.min {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h gateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return gateHandler{next: h.next.WithAttrs(attrs), min: h.min}
}

func (h gateHandler) WithGroup(name string) slog.Handler {
	return gateHandler{next: h.next.WithGroup(name), min: h.min}
}

// withMinLevel gates logger at level. An existing gate is replaced, not
// stacked, so a stage override can admit records the global gate refused.
func withMinLevel(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	next := logger.Handler()
	if gate, ok := next.(gateHandler); ok {
		next = gate.next
	}
	return slog.New(gateHandler{next: next, min: level})
}
