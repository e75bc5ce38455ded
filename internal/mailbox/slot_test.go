package mailbox

import (
	"sync"
	"testing"
	"time"
)

func TestSlot_OverwriteKeepsLatest(t *testing.T) {
	s := New[int]()

	if s.Put(1) {
		t.Error("first Put should not overwrite")
	}
	if !s.Put(2) {
		t.Error("second Put should overwrite")
	}

	v, ok := s.Take()
	if !ok || v != 2 {
		t.Fatalf("Take() = %d, %v, want 2, true", v, ok)
	}

	stats := s.Stats()
	if stats.Published != 2 || stats.Consumed != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSlot_TakeBlocksUntilPut(t *testing.T) {
	s := New[string]()
	got := make(chan string, 1)

	go func() {
		v, _ := s.Take()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Take returned before Put")
	case <-time.After(20 * time.Millisecond):
	}

	s.Put("frame")
	select {
	case v := <-got:
		if v != "frame" {
			t.Errorf("got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not wake up")
	}
}

func TestSlot_CloseWakesConsumerAndDropsPending(t *testing.T) {
	s := New[int]()
	s.Put(7)
	if !s.Close() {
		t.Error("Close should report the pending value")
	}
	if _, ok := s.Take(); ok {
		t.Error("Take after Close should fail")
	}
	if s.Put(8) {
		t.Error("Put on closed slot should not overwrite")
	}

	s2 := New[int]()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, ok := s2.Take(); ok {
			t.Error("expected closed")
		}
	}()
	time.Sleep(10 * time.Millisecond)
	s2.Close()
	wg.Wait()
}
