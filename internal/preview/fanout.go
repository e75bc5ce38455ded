package preview

import (
	"sync"

	"github.com/smazurov/qrgrabber/internal/capture"
)

// Fanout copies each frame to every subscriber. Subscriber channels hold
// one frame; a slow subscriber sees the newest frame, not a backlog.
type Fanout struct {
	mu   sync.Mutex
	subs map[chan capture.PixelBuffer]struct{}
}

// NewFanout creates a Fanout with no subscribers.
func NewFanout() *Fanout {
	return &Fanout{subs: make(map[chan capture.PixelBuffer]struct{})}
}

// Subscribe returns a frame channel and a function that removes it.
func (f *Fanout) Subscribe() (<-chan capture.PixelBuffer, func()) {
	ch := make(chan capture.PixelBuffer, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscribers.
func (f *Fanout) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Sink implements capture.Sink. It never blocks.
func (f *Fanout) Sink(buf capture.PixelBuffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- buf:
			continue
		default:
		}
		// replace the stale frame
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- buf:
		default:
		}
	}
	return nil
}

// Tee returns a sink that calls every non-nil sink in order. All sinks
// run and the first error is returned.
func Tee(sinks ...capture.Sink) capture.Sink {
	return func(buf capture.PixelBuffer) error {
		var first error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s(buf); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}
