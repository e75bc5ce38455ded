package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type failingHandler struct {
	err     error
	handled int
}

func (h *failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *failingHandler) Handle(context.Context, slog.Record) error {
	h.handled++
	return h.err
}

func (h *failingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *failingHandler) WithGroup(string) slog.Handler      { return h }

func TestTeeHandlerJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	a := &failingHandler{err: errA}
	b := &failingHandler{}

	tee := teeHandler{a, b}
	err := tee.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	if !errors.Is(err, errA) {
		t.Errorf("Expected joined error to wrap errA, got %v", err)
	}
	if a.handled != 1 || b.handled != 1 {
		t.Errorf("Expected both handlers called once, got %d and %d", a.handled, b.handled)
	}
}

func TestBufferHandlerGroups(t *testing.T) {
	buffer := NewRingBuffer(4)
	logger := slog.New(NewBufferHandler(buffer, slog.LevelDebug, nil)).
		With("module", "capture", "device", "/dev/video0").
		WithGroup("format").
		With("subtype", "YUYV")

	logger.Info("negotiated", "width", 800, slog.Duration("took", 1500*time.Millisecond),
		slog.Group("size", "w", 800, "h", 600))

	entries := buffer.ReadAll()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Module != "capture" {
		t.Errorf("Expected module capture, got %q", got.Module)
	}

	want := map[string]any{
		"device":         "/dev/video0",
		"format.subtype": "YUYV",
		"format.width":   int64(800),
		"format.took":    "1.5s",
		"format.size.w":  int64(800),
		"format.size.h":  int64(600),
	}
	for key, value := range want {
		if got.Attributes[key] != value {
			t.Errorf("Attributes[%q] = %v (%T), want %v (%T)", key, got.Attributes[key], got.Attributes[key], value, value)
		}
	}
	if len(got.Attributes) != len(want) {
		t.Errorf("Expected %d attributes, got %v", len(want), got.Attributes)
	}
}

func TestBufferHandlerErrorAttr(t *testing.T) {
	buffer := NewRingBuffer(1)
	logger := slog.New(NewBufferHandler(buffer, slog.LevelInfo, nil))
	logger.Warn("frame dropped", "error", errors.New("convert failed"))

	entry := buffer.ReadAll()[0]
	if entry.Module != "app" {
		t.Errorf("Expected default module app, got %q", entry.Module)
	}
	if entry.Attributes["error"] != "convert failed" {
		t.Errorf("Expected error string, got %#v", entry.Attributes["error"])
	}
}

func TestJournalKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"scan_id", "SCAN_ID"},
		{"format.subtype", "FORMAT_SUBTYPE"},
		{"_hidden", "HIDDEN"},
		{"9lives", "ATTR_9LIVES"},
		{"bad-key name", "BAD_KEY_NAME"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := journalKey(tt.in); got != tt.want {
				t.Errorf("journalKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRingBufferQuery(t *testing.T) {
	rb := NewRingBuffer(8)
	for _, e := range []LogEntry{
		{Module: "scan", Level: "debug", Message: "1"},
		{Module: "capture", Level: "warn", Message: "2"},
		{Module: "scan", Level: "info", Message: "3"},
		{Module: "scan", Level: "error", Message: "4"},
		{Module: "api", Level: "info", Message: "5"},
	} {
		rb.Write(e)
	}

	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{name: "all", query: Query{}, want: "12345"},
		{name: "module", query: Query{Module: "scan"}, want: "134"},
		{name: "min level", query: Query{MinLevel: "warn"}, want: "24"},
		{name: "module and level", query: Query{Module: "scan", MinLevel: "info"}, want: "34"},
		{name: "limit keeps newest", query: Query{Limit: 2}, want: "45"},
		{name: "no match", query: Query{Module: "led"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			for _, e := range rb.Entries(tt.query) {
				got += e.Message
			}
			if got != tt.want {
				t.Errorf("Entries(%+v) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}
