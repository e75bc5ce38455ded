package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/qrgrabber/internal/imaging"
	"github.com/smazurov/qrgrabber/internal/mailbox"
	"github.com/smazurov/qrgrabber/internal/metrics"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// RelayStats reports relay counters.
type RelayStats struct {
	Arrivals     uint64
	Empty        uint64
	Errors       uint64
	Delivered    uint64
	Overwritten  uint64
	SinkFailures uint64
}

// Relay converts arriving frames to PixelBuffers and hands them to the sink.
//
// HandleFrameArrived runs on the backend's callback goroutine and never waits
// for the sink: converted frames go into a latest-value slot that a separate
// delivery goroutine drains. A frame the sink has not picked up yet is
// replaced by the next arrival.
type Relay struct {
	logger *slog.Logger

	mu      sync.Mutex
	sink    Sink
	slot    *mailbox.Slot[PixelBuffer]
	running bool
	done    chan struct{}
	stats   RelayStats
}

// NewRelay creates a stopped relay.
func NewRelay(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{logger: logger}
}

// SetSink replaces the frame sink. A nil sink discards frames.
func (r *Relay) SetSink(sink Sink) {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
}

// Start launches the delivery goroutine. Starting a running relay is a no-op.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.slot = mailbox.New[PixelBuffer]()
	r.done = make(chan struct{})
	r.running = true
	go r.deliverLoop(r.slot, r.done)
}

// Stop halts delivery and waits for an in-flight sink call to return.
// A frame still waiting in the slot is dropped.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	slot, done := r.slot, r.done
	r.running = false
	r.mu.Unlock()

	if slot.Close() {
		metrics.FrameDropped(metrics.DropNotStarted)
	}
	<-done
}

// HandleFrameArrived is the platform.FrameArrivedHandler for the session's
// reader.
func (r *Relay) HandleFrameArrived(reader platform.FrameReader) {
	r.count(func(s *RelayStats) { s.Arrivals++ })

	frame, err := reader.TryAcquireLatestFrame()
	if err != nil {
		r.logger.Warn("Failed to acquire frame", "error", err)
		r.count(func(s *RelayStats) { s.Errors++ })
		metrics.FrameDropped(metrics.DropAcquire)
		return
	}
	if frame == nil {
		// reader not ready yet, or racing shutdown
		r.count(func(s *RelayStats) { s.Empty++ })
		metrics.FrameDropped(metrics.DropEmpty)
		return
	}
	if frame.Bitmap == nil {
		r.logger.Warn("Frame has no CPU bitmap", "seq", frame.Seq)
		r.count(func(s *RelayStats) { s.Errors++ })
		metrics.FrameDropped(metrics.DropNoBitmap)
		return
	}

	pix, width, height, err := imaging.ToRGBA(frame.Bitmap)
	if err != nil {
		r.logger.Warn("Failed to convert frame", "seq", frame.Seq, "format", frame.Bitmap.Format, "error", err)
		r.count(func(s *RelayStats) { s.Errors++ })
		metrics.FrameDropped(metrics.DropConvert)
		return
	}

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	buf := PixelBuffer{Seq: frame.Seq, Width: width, Height: height, Pix: pix, Timestamp: ts}

	r.mu.Lock()
	slot, running := r.slot, r.running
	r.mu.Unlock()
	if !running {
		metrics.FrameDropped(metrics.DropNotStarted)
		return
	}
	if slot.Put(buf) {
		r.count(func(s *RelayStats) { s.Overwritten++ })
		metrics.FrameDropped(metrics.DropOverwrite)
	}
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() RelayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Relay) count(update func(*RelayStats)) {
	r.mu.Lock()
	update(&r.stats)
	r.mu.Unlock()
}

func (r *Relay) deliverLoop(slot *mailbox.Slot[PixelBuffer], done chan struct{}) {
	defer close(done)
	for {
		buf, ok := slot.Take()
		if !ok {
			return
		}
		r.mu.Lock()
		sink := r.sink
		r.mu.Unlock()
		if sink == nil {
			continue
		}
		if err := r.invoke(sink, buf); err != nil {
			r.logger.Warn("Frame sink failed", "seq", buf.Seq, "error", err)
			r.count(func(s *RelayStats) { s.SinkFailures++ })
			metrics.SinkFailed()
			continue
		}
		r.count(func(s *RelayStats) { s.Delivered++ })
		metrics.FrameDelivered()
	}
}

func (r *Relay) invoke(sink Sink, buf PixelBuffer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sink panicked: %v", rec)
		}
	}()
	return sink(buf)
}
