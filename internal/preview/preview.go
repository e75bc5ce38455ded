// Package preview keeps the latest captured frame for presentation: JPEG
// snapshots over HTTP and pushed frames over websockets.
package preview

import (
	"bytes"
	"errors"
	"image/jpeg"
	"sync"

	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/imaging"
)

// ErrNoFrame is returned before the first frame arrived.
var ErrNoFrame = errors.New("no preview frame available")

// Options configures a Latest.
type Options struct {
	MirrorX     bool
	JPEGQuality int
}

// Latest remembers the most recent frame.
type Latest struct {
	opts Options

	mu  sync.RWMutex
	buf capture.PixelBuffer
	ok  bool
}

// NewLatest creates an empty preview store.
func NewLatest(opts Options) *Latest {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}
	return &Latest{opts: opts}
}

// Sink implements capture.Sink.
func (l *Latest) Sink(buf capture.PixelBuffer) error {
	l.mu.Lock()
	l.buf = buf
	l.ok = true
	l.mu.Unlock()
	return nil
}

// Snapshot returns the latest frame. The buffer is shared; do not modify it.
func (l *Latest) Snapshot() (capture.PixelBuffer, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buf, l.ok
}

// Reset forgets the stored frame.
func (l *Latest) Reset() {
	l.mu.Lock()
	l.buf = capture.PixelBuffer{}
	l.ok = false
	l.mu.Unlock()
}

// JPEG encodes the latest frame.
func (l *Latest) JPEG() ([]byte, error) {
	buf, ok := l.Snapshot()
	if !ok {
		return nil, ErrNoFrame
	}
	return EncodeJPEG(buf, l.Options())
}

// Options returns the current encoding options.
func (l *Latest) Options() Options {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.opts
}

// SetOptions replaces the encoding options for later snapshots.
func (l *Latest) SetOptions(opts Options) {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}
	l.mu.Lock()
	l.opts = opts
	l.mu.Unlock()
}

// EncodeJPEG encodes buf, mirroring it first when opts.MirrorX is set.
func EncodeJPEG(buf capture.PixelBuffer, opts Options) ([]byte, error) {
	pix := buf.Pix
	if opts.MirrorX {
		pix = append([]byte(nil), buf.Pix...)
		imaging.Mirror(pix, buf.Width, buf.Height)
	}
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = 80
	}

	var out bytes.Buffer
	img := imaging.RGBAImage(pix, buf.Width, buf.Height)
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
