package logging

import (
	"log/slog"
	"sync"
	"time"
)

// LogEntry is one record kept for the log stream.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Query selects buffered entries. The zero Query matches everything.
type Query struct {
	Module   string
	MinLevel string // debug, info, warn or error
	Limit    int    // keep only the newest Limit matches
}

// Matches reports whether entry passes the module and level filters.
func (q Query) Matches(entry LogEntry) bool {
	if q.Module != "" && entry.Module != q.Module {
		return false
	}
	if q.MinLevel == "" {
		return true
	}
	return levelOrDefault(entry.Level, slog.LevelInfo) >= levelOrDefault(q.MinLevel, slog.LevelDebug)
}

// RingBuffer keeps the most recent entries, overwriting the oldest.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{entries: make([]LogEntry, size)}
}

func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next = 0
		rb.full = true
	}
}

// Entries returns the entries matching q, oldest first.
func (rb *RingBuffer) Entries(q Query) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []LogEntry
	collect := func(entries []LogEntry) {
		for _, e := range entries {
			if q.Matches(e) {
				out = append(out, e)
			}
		}
	}
	if rb.full {
		collect(rb.entries[rb.next:])
	}
	collect(rb.entries[:rb.next])

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// ReadAll returns every buffered entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Entries(Query{})
}

func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}
