package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/qrgrabber/internal/platform"
	"github.com/smazurov/qrgrabber/internal/platform/fake"
)

// startedReader returns a started fake reader wired to relay.
func startedReader(t *testing.T, relay *Relay) *fake.Reader {
	t.Helper()
	ctx := context.Background()
	backend := fake.New()
	s := NewSession(backend, relay, 0, nil)
	if _, err := s.Prepare(ctx, fake.GroupID); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(ctx) })
	return backend.Reader()
}

func TestRelay_UsesActualFrameDimensions(t *testing.T) {
	relay := NewRelay(nil)
	rec := newSinkRecorder()
	relay.SetSink(rec.Sink)
	reader := startedReader(t, relay)

	// negotiated 800x600, camera delivers 798x600
	reader.Arrive(rgbaBitmap(798, 600))
	rec.wait(t)

	rec.mu.Lock()
	buf := rec.bufs[0]
	rec.mu.Unlock()
	if buf.Width != 798 || buf.Height != 600 {
		t.Errorf("buffer = %dx%d, want 798x600", buf.Width, buf.Height)
	}
	if len(buf.Pix) != 4*798*600 {
		t.Errorf("len(Pix) = %d, want %d", len(buf.Pix), 4*798*600)
	}
}

func TestRelay_EmptyArrivalsDeliverNothing(t *testing.T) {
	relay := NewRelay(nil)
	rec := newSinkRecorder()
	relay.SetSink(rec.Sink)
	reader := startedReader(t, relay)

	for range 5 {
		reader.ArriveEmpty()
	}
	reader.Arrive(&platform.Bitmap{Format: platform.PixelFormatUnknown, Width: 2, Height: 2, Data: []byte{1}})
	reader.Arrive(nil)

	time.Sleep(30 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("sink called %d times, want 0", rec.count())
	}
	stats := relay.Stats()
	if stats.Empty != 5 {
		t.Errorf("Empty = %d, want 5", stats.Empty)
	}
	if stats.Errors != 2 {
		t.Errorf("Errors = %d, want 2", stats.Errors)
	}
}

func TestRelay_SinkFailureDoesNotStopStream(t *testing.T) {
	relay := NewRelay(nil)
	var calls atomic.Int32
	delivered := make(chan struct{}, 8)
	relay.SetSink(func(buf PixelBuffer) error {
		n := calls.Add(1)
		delivered <- struct{}{}
		switch n {
		case 1:
			return errors.New("ui closed")
		case 2:
			panic("sink bug")
		}
		return nil
	})
	reader := startedReader(t, relay)

	for range 3 {
		reader.Arrive(rgbaBitmap(4, 4))
		select {
		case <-delivered:
		case <-time.After(time.Second):
			t.Fatal("sink not called")
		}
	}

	// allow the last delivery to be counted
	time.Sleep(10 * time.Millisecond)
	stats := relay.Stats()
	if stats.SinkFailures != 2 {
		t.Errorf("SinkFailures = %d, want 2", stats.SinkFailures)
	}
	if stats.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", stats.Delivered)
	}
}

func TestRelay_NeverBlocksOnSlowSink(t *testing.T) {
	relay := NewRelay(nil)
	release := make(chan struct{})
	var calls atomic.Int32
	relay.SetSink(func(PixelBuffer) error {
		calls.Add(1)
		<-release
		return nil
	})
	reader := startedReader(t, relay)

	done := make(chan struct{})
	go func() {
		for range 20 {
			reader.Arrive(rgbaBitmap(4, 4))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame arrivals blocked on the sink")
	}
	close(release)

	time.Sleep(20 * time.Millisecond)
	if n := calls.Load(); n > 3 {
		t.Errorf("sink called %d times, want latest-value delivery", n)
	}
	if relay.Stats().Overwritten == 0 {
		t.Error("expected superseded frames to be counted")
	}
}

func TestRelay_BuffersAreNotShared(t *testing.T) {
	relay := NewRelay(nil)
	rec := newSinkRecorder()
	relay.SetSink(rec.Sink)
	reader := startedReader(t, relay)

	bm := rgbaBitmap(2, 2)
	reader.Arrive(bm)
	rec.wait(t)
	bm.Data[0] = 0xaa
	reader.Arrive(bm)
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.bufs[0].Pix[0] != 0 {
		t.Error("first buffer was mutated by a later frame")
	}
	if &rec.bufs[0].Pix[0] == &rec.bufs[1].Pix[0] {
		t.Error("buffers share storage")
	}
}

func TestRelay_ArrivalBeforeStartIsDropped(t *testing.T) {
	relay := NewRelay(nil)
	rec := newSinkRecorder()
	relay.SetSink(rec.Sink)

	backend := fake.New()
	s := NewSession(backend, relay, 0, nil)
	if _, err := s.Prepare(context.Background(), fake.GroupID); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())

	// call the handler directly, as a backend might before Start
	relay.HandleFrameArrived(backend.Reader())
	relay.Stop()
	if rec.count() != 0 {
		t.Error("frame delivered before Start")
	}
}
