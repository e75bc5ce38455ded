package decode

import (
	"context"
	"log/slog"
	"sync"

	"github.com/smazurov/qrgrabber/internal/platform"
)

// Scanner is a software barcode scanner bound to a video device. It
// implements platform.ClaimedScanner: frames fed to it are decoded while it
// is enabled and its trigger is held, and each decode is reported through
// the data-received handler.
type Scanner struct {
	logger *slog.Logger

	mu            sync.Mutex
	handler       platform.DataReceivedHandler
	decodeData    bool
	enabled       bool
	triggered     bool
	released      bool
	worker        *Worker
	newDecoder    func() Decoder
	onRelease     func()
	lastDelivered string
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithDecoderFactory overrides the decoder used for each enable cycle.
func WithDecoderFactory(factory func() Decoder) ScannerOption {
	return func(s *Scanner) {
		s.newDecoder = factory
	}
}

// WithReleaseHook runs fn once when the scanner is released.
func WithReleaseHook(fn func()) ScannerOption {
	return func(s *Scanner) {
		s.onRelease = fn
	}
}

// NewScanner creates a claimed software scanner.
func NewScanner(logger *slog.Logger, opts ...ScannerOption) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{
		logger:     logger,
		newDecoder: func() Decoder { return NewZXing(true) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDataReceivedHandler implements platform.ClaimedScanner.
func (s *Scanner) SetDataReceivedHandler(handler platform.DataReceivedHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// SetDecodeDataEnabled implements platform.ClaimedScanner. When disabled,
// reports carry raw data only and no label.
func (s *Scanner) SetDecodeDataEnabled(enabled bool) {
	s.mu.Lock()
	s.decodeData = enabled
	s.mu.Unlock()
}

// Enable implements platform.ClaimedScanner.
func (s *Scanner) Enable(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return errReleased
	}
	if s.enabled {
		return nil
	}
	s.enabled = true
	s.worker = NewWorker(s.newDecoder(), s.deliver, s.logger)
	return nil
}

// Disable implements platform.ClaimedScanner.
func (s *Scanner) Disable(_ context.Context) error {
	s.mu.Lock()
	w := s.worker
	s.worker = nil
	s.enabled = false
	s.triggered = false
	s.mu.Unlock()

	if w != nil {
		w.Close()
	}
	return nil
}

// StartSoftwareTrigger implements platform.ClaimedScanner.
func (s *Scanner) StartSoftwareTrigger(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return errReleased
	}
	if !s.enabled {
		return errNotEnabled
	}
	s.triggered = true
	s.lastDelivered = ""
	return nil
}

// StopSoftwareTrigger implements platform.ClaimedScanner.
func (s *Scanner) StopSoftwareTrigger(_ context.Context) error {
	s.mu.Lock()
	s.triggered = false
	s.mu.Unlock()
	return nil
}

// Release implements platform.ClaimedScanner. It is idempotent.
func (s *Scanner) Release() error {
	_ = s.Disable(context.Background())

	s.mu.Lock()
	already := s.released
	s.released = true
	s.handler = nil
	hook := s.onRelease
	s.mu.Unlock()

	if !already && hook != nil {
		hook()
	}
	return nil
}

// Feed offers a frame to the scanner. Frames are ignored unless the scanner
// is enabled and triggered. The bitmap must not be modified afterwards.
func (s *Scanner) Feed(bm *platform.Bitmap) {
	s.mu.Lock()
	w := s.worker
	active := s.enabled && s.triggered
	s.mu.Unlock()

	if active && w != nil {
		w.Submit(bm)
	}
}

// Active reports whether fed frames are currently being decoded.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.triggered
}

func (s *Scanner) deliver(d Decoded) {
	s.mu.Lock()
	handler := s.handler
	active := s.enabled && s.triggered
	decodeData := s.decodeData
	// the same code stays in view for many frames; report it once per trigger
	repeat := d.Text == s.lastDelivered
	if active && !repeat {
		s.lastDelivered = d.Text
	}
	s.mu.Unlock()

	if !active || repeat || handler == nil {
		return
	}

	report := platform.ScanReport{
		Symbology: d.Symbology,
		ScanData:  d.Raw,
	}
	if decodeData {
		report.ScanDataLabel = []byte(d.Text)
	}
	handler(report)
}
