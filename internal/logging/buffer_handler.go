package logging

import (
	"context"
	"log/slog"
	"time"
)

// LogCallback receives every entry the buffer handler records. It lets the
// application publish log events without this package importing the bus.
type LogCallback func(entry LogEntry)

// BufferHandler records entries in a RingBuffer and hands them to a callback.
type BufferHandler struct {
	buffer   *RingBuffer
	level    slog.Leveler
	set      attrSet
	callback LogCallback
}

// NewBufferHandler creates a handler writing to buffer. callback may be nil.
func NewBufferHandler(buffer *RingBuffer, level slog.Leveler, callback LogCallback) *BufferHandler {
	return &BufferHandler{buffer: buffer, level: level, callback: callback}
}

func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelToString(r.Level),
		Module:    "app",
		Message:   r.Message,
	}

	fields := h.set.record(r)
	if len(fields) > 0 {
		entry.Attributes = make(map[string]any, len(fields))
	}
	for _, f := range fields {
		if f.key == moduleKey {
			entry.Module = f.value.String()
			continue
		}
		entry.Attributes[f.key] = plainValue(f.value)
	}

	h.buffer.Write(entry)
	if h.callback != nil {
		h.callback(entry)
	}
	return nil
}

// plainValue converts v to something that survives JSON encoding intact.
func plainValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}

func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.set = h.set.withAttrs(attrs)
	return &next
}

func (h *BufferHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.set = h.set.withGroup(name)
	return &next
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
