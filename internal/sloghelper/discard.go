package sloghelper

import (
	"context"
	"log/slog"
)

// A slog.Handler that drops everything. Components that are not given a
// logger fall back to this.
type DiscardHandler struct{}

func (DiscardHandler) Enabled(context.Context, slog.Level) bool {
	return false
}

func (DiscardHandler) Handle(context.Context, slog.Record) error {
	return nil
}

func (d DiscardHandler) WithAttrs([]slog.Attr) slog.Handler {
	return d
}

func (d DiscardHandler) WithGroup(string) slog.Handler {
	return d
}

// Returns l, or a logger that discards everything when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(DiscardHandler{})
}
