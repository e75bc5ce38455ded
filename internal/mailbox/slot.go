// Package mailbox provides a single-slot latest-value buffer.
//
// Put never blocks: a new value overwrites one that has not been taken yet
// and the overwrite is counted as a drop. Take blocks until a value is
// available or the slot is closed. A slot has one consumer.
package mailbox

import "sync"

// Stats reports slot counters.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
}

// Slot is a latest-value mailbox.
type Slot[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	full   bool
	closed bool
	stats  Stats
}

// New creates an open, empty slot.
func New[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Put stores v, replacing any unconsumed value. It reports whether a value
// was overwritten. Put on a closed slot discards v and returns false.
func (s *Slot[T]) Put(v T) (overwrote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.full {
		s.stats.Dropped++
		overwrote = true
	}
	s.value = v
	s.full = true
	s.stats.Published++
	s.cond.Signal()
	return overwrote
}

// Take blocks until a value is available and returns it. ok is false once
// the slot is closed; a value pending at Close is discarded.
func (s *Slot[T]) Take() (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.full && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return v, false
	}
	v = s.value
	var zero T
	s.value = zero
	s.full = false
	s.stats.Consumed++
	return v, true
}

// Close wakes the consumer and drops any pending value. It returns
// true if a value was discarded.
func (s *Slot[T]) Close() (discarded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	discarded = s.full
	if discarded {
		s.stats.Dropped++
	}
	var zero T
	s.value = zero
	s.full = false
	s.closed = true
	s.cond.Broadcast()
	return discarded
}

// Stats returns a snapshot of the slot counters.
func (s *Slot[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
