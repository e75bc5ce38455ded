package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// swapHandler forwards to a root handler that Initialize can replace, so a
// logger keeps its identity while its output changes. Attributes and groups
// added through With are replayed on the current root.
type swapHandler struct {
	root *atomic.Pointer[slog.Handler]
	ops  []func(slog.Handler) slog.Handler
}

func newSwapHandler(h slog.Handler) *swapHandler {
	root := &atomic.Pointer[slog.Handler]{}
	root.Store(&h)
	return &swapHandler{root: root}
}

func (h *swapHandler) swap(next slog.Handler) {
	h.root.Store(&next)
}

func (h *swapHandler) current() slog.Handler {
	handler := *h.root.Load()
	for _, op := range h.ops {
		handler = op(handler)
	}
	return handler
}

func (h *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*h.root.Load()).Enabled(ctx, level)
}

func (h *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.current().Handle(ctx, r)
}

func (h *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *swapHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *swapHandler) with(op func(slog.Handler) slog.Handler) *swapHandler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &swapHandler{root: h.root, ops: append(ops, op)}
}
