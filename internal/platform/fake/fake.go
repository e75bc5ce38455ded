// Package fake is an in-memory capture backend. Tests drive it frame by frame
// through Reader().Arrive and Claimed().Emit; the "fake" backend registered
// with the platform registry plays a generated QR pattern instead.
package fake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/qrgrabber/internal/decode"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// Fixture identifiers.
const (
	GroupID   = "fake-camera"
	SourceID  = "fake-camera/color"
	ScannerID = "fake-scanner"
)

// DefaultGroups is one camera with a single 800x600 color source.
func DefaultGroups() []platform.SourceGroup {
	return []platform.SourceGroup{{
		ID:          GroupID,
		DisplayName: "Fake Camera",
		Sources: []platform.SourceInfo{{
			ID:         SourceID,
			StreamType: platform.StreamTypeVideoRecord,
			Kind:       platform.SourceKindColor,
			Formats:    []platform.Format{{Subtype: "RGBA", Width: 800, Height: 600}},
		}},
	}}
}

// Errors injected through options are returned from the matching call.
type Errors struct {
	Enumerate error
	Init      error
	Source    error
	SetFormat error
	Reader    error
	Start     error
	Claim     error
	Enable    error
	Trigger   error
}

// AutoPlay makes started readers generate frames on their own.
type AutoPlay struct {
	FPS int
	// Label is rendered as a QR code into every frame. Empty renders gray.
	Label string
}

// Option configures a Backend.
type Option func(*Backend)

// WithGroups replaces the enumerated source groups.
func WithGroups(groups []platform.SourceGroup) Option {
	return func(b *Backend) { b.groups = groups }
}

// WithoutScanner makes DefaultScanner report platform.ErrNoScanner.
func WithoutScanner() Option {
	return func(b *Backend) { b.noScanner = true }
}

// WithErrors injects failures.
func WithErrors(errs Errors) Option {
	return func(b *Backend) { b.errs = errs }
}

// WithAutoPlay starts a frame generator on every started reader and decodes
// the generated frames with a software scanner.
func WithAutoPlay(play AutoPlay) Option {
	return func(b *Backend) { b.autoplay = &play }
}

// WithDisableHook runs fn at the start of every claimed scanner's Disable,
// before it takes effect. Tests use it to hold a release in progress.
func WithDisableHook(fn func()) Option {
	return func(b *Backend) { b.onDisable = fn }
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// Backend implements platform.Backend in memory.
type Backend struct {
	groups    []platform.SourceGroup
	noScanner bool
	errs      Errors
	autoplay  *AutoPlay
	onDisable func()
	logger    *slog.Logger

	mu       sync.Mutex
	captures []*Capture
	claimed  *Claimed
	scanner  *Scanner
}

// New creates a fake backend.
func New(opts ...Option) *Backend {
	b := &Backend{groups: DefaultGroups(), logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.scanner = &Scanner{backend: b}
	return b
}

func init() {
	platform.Register("fake", func(cfg platform.Config) (platform.Backend, error) {
		return New(
			WithLogger(cfg.Logger),
			WithAutoPlay(AutoPlay{FPS: 15, Label: "qrgrabber"}),
		), nil
	})
}

// Name implements platform.Backend.
func (b *Backend) Name() string { return "fake" }

// Close implements platform.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	captures := append([]*Capture(nil), b.captures...)
	claimed := b.claimed
	b.mu.Unlock()

	for _, c := range captures {
		_ = c.Close()
	}
	if claimed != nil {
		_ = claimed.Release()
	}
	return nil
}

// FindSourceGroups implements platform.MediaService.
func (b *Backend) FindSourceGroups(_ context.Context) ([]platform.SourceGroup, error) {
	if b.errs.Enumerate != nil {
		return nil, b.errs.Enumerate
	}
	return b.groups, nil
}

// Initialize implements platform.MediaService.
func (b *Backend) Initialize(_ context.Context, settings platform.InitSettings) (platform.MediaCapture, error) {
	if b.errs.Init != nil {
		return nil, b.errs.Init
	}
	var group *platform.SourceGroup
	for i := range b.groups {
		if b.groups[i].ID == settings.SourceGroupID {
			group = &b.groups[i]
		}
	}
	if group == nil {
		return nil, fmt.Errorf("source group %q: %w", settings.SourceGroupID, platform.ErrSourceNotFound)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if settings.SharingMode == platform.SharingModeExclusiveControl && b.activeLocked() > 0 {
		return nil, errors.New("device busy")
	}
	c := &Capture{backend: b, group: *group, settings: settings}
	b.captures = append(b.captures, c)
	return c, nil
}

// DefaultScanner implements platform.ScannerService.
func (b *Backend) DefaultScanner(_ context.Context) (platform.BarcodeScanner, error) {
	if b.noScanner {
		return nil, platform.ErrNoScanner
	}
	return b.scanner, nil
}

// ActiveSessions counts captures that are initialized and not closed.
func (b *Backend) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeLocked()
}

func (b *Backend) activeLocked() int {
	n := 0
	for _, c := range b.captures {
		if !c.closed {
			n++
		}
	}
	return n
}

// Captures returns every capture created so far.
func (b *Backend) Captures() []*Capture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Capture(nil), b.captures...)
}

// LastCapture returns the most recent capture, or nil.
func (b *Backend) LastCapture() *Capture {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.captures) == 0 {
		return nil
	}
	return b.captures[len(b.captures)-1]
}

// Reader returns the reader of the most recent capture, or nil.
func (b *Backend) Reader() *Reader {
	c := b.LastCapture()
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader
}

// Claimed returns the current scanner claim, or nil.
func (b *Backend) Claimed() *Claimed {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.claimed
}

// Capture implements platform.MediaCapture.
type Capture struct {
	backend  *Backend
	group    platform.SourceGroup
	settings platform.InitSettings

	mu     sync.Mutex
	format platform.Format
	reader *Reader
	closed bool
}

// Settings returns the settings the capture was initialized with.
func (c *Capture) Settings() platform.InitSettings { return c.settings }

// Format returns the applied format.
func (c *Capture) Format() platform.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Closed reports whether Close was called.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FrameSource implements platform.MediaCapture.
func (c *Capture) FrameSource(id string) (platform.FrameSource, error) {
	if c.backend.errs.Source != nil {
		return nil, c.backend.errs.Source
	}
	for _, src := range c.group.Sources {
		if src.ID == id {
			return &Source{capture: c, info: src}, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, platform.ErrSourceNotFound)
}

// CreateFrameReader implements platform.MediaCapture.
func (c *Capture) CreateFrameReader(_ context.Context, _ platform.FrameSource) (platform.FrameReader, error) {
	if c.backend.errs.Reader != nil {
		return nil, c.backend.errs.Reader
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("capture closed")
	}
	r := &Reader{capture: c}
	c.reader = r
	return r, nil
}

// Close implements platform.MediaCapture.
func (c *Capture) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.closed = true
	c.mu.Unlock()

	if reader != nil {
		_ = reader.Stop(context.Background())
	}
	return nil
}

// Source implements platform.FrameSource.
type Source struct {
	capture *Capture
	info    platform.SourceInfo
}

// Info implements platform.FrameSource.
func (s *Source) Info() platform.SourceInfo { return s.info }

// SupportedFormats implements platform.FrameSource.
func (s *Source) SupportedFormats() []platform.Format { return s.info.Formats }

// SetFormat implements platform.FrameSource.
func (s *Source) SetFormat(_ context.Context, format platform.Format) error {
	if s.capture.backend.errs.SetFormat != nil {
		return s.capture.backend.errs.SetFormat
	}
	s.capture.mu.Lock()
	s.capture.format = format
	s.capture.mu.Unlock()
	return nil
}

// Reader implements platform.FrameReader. Pending frames queued by Arrive
// are handed out newest first by TryAcquireLatestFrame.
type Reader struct {
	capture *Capture

	mu      sync.Mutex
	handler platform.FrameArrivedHandler
	latest  *platform.Frame
	seq     uint64
	started bool
	starts  int
	cancel  context.CancelFunc
	done    chan struct{}
}

// SetFrameArrivedHandler implements platform.FrameReader.
func (r *Reader) SetFrameArrivedHandler(handler platform.FrameArrivedHandler) {
	r.mu.Lock()
	r.handler = handler
	r.mu.Unlock()
}

// TryAcquireLatestFrame implements platform.FrameReader. Each frame is
// handed out once.
func (r *Reader) TryAcquireLatestFrame() (*platform.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.latest
	r.latest = nil
	return f, nil
}

// Start implements platform.FrameReader.
func (r *Reader) Start(_ context.Context) error {
	b := r.capture.backend
	if b.errs.Start != nil {
		return b.errs.Start
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("reader already started")
	}
	r.started = true
	r.starts++

	if b.autoplay != nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.done = make(chan struct{})
		go r.play(ctx, *b.autoplay, r.done)
	}
	return nil
}

// Stop implements platform.FrameReader.
func (r *Reader) Stop(_ context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.started = false
	r.latest = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Started reports whether the reader is delivering frames.
func (r *Reader) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Starts counts Start calls that succeeded.
func (r *Reader) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

// Arrive stores bm as the latest frame and invokes the arrival handler on
// the calling goroutine. It returns false if the reader is not started.
func (r *Reader) Arrive(bm *platform.Bitmap) bool {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return false
	}
	r.seq++
	r.latest = &platform.Frame{Seq: r.seq, Timestamp: time.Now(), Bitmap: bm}
	handler := r.handler
	r.mu.Unlock()

	if handler != nil {
		handler(r)
	}
	if cl := r.capture.backend.Claimed(); cl != nil && bm != nil {
		cl.feed(bm)
	}
	return true
}

// ArriveEmpty signals an arrival without storing a frame, as a backend
// does when racing shutdown.
func (r *Reader) ArriveEmpty() {
	r.mu.Lock()
	handler := r.handler
	r.latest = nil
	r.mu.Unlock()
	if handler != nil {
		handler(r)
	}
}

func (r *Reader) play(ctx context.Context, play AutoPlay, done chan struct{}) {
	defer close(done)

	fps := play.FPS
	if fps <= 0 {
		fps = 15
	}
	format := r.capture.Format()
	bm, err := Pattern(play.Label, int(format.Width), int(format.Height))
	if err != nil {
		r.capture.backend.logger.Warn("Failed to render fake pattern", "error", err)
		return
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Arrive(bm)
		}
	}
}

// Pattern renders label as a QR code in an RGBA bitmap of the given size.
// An empty label produces a plain gray frame.
func Pattern(label string, width, height int) (*platform.Bitmap, error) {
	if width <= 0 || height <= 0 {
		width, height = 800, 600
	}
	pix := make([]byte, width*height*4)
	bm := &platform.Bitmap{
		Format: platform.PixelFormatRGBA8,
		Alpha:  platform.AlphaModePremultiplied,
		Width:  width,
		Height: height,
		Data:   pix,
	}
	if label == "" {
		for i := range pix {
			pix[i] = 0x80
		}
		for i := 3; i < len(pix); i += 4 {
			pix[i] = 0xff
		}
		return bm, nil
	}

	side := min(width, height)
	qr, err := decode.RenderQR(label, side, side)
	if err != nil {
		return nil, err
	}
	ox, oy := (width-side)/2, (height-side)/2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(0xff)
			if qx, qy := x-ox, y-oy; qx >= 0 && qy >= 0 && qx < side && qy < side {
				v = qr.Pix[qy*qr.Stride+qx]
			}
			i := (y*width + x) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 0xff
		}
	}
	return bm, nil
}
