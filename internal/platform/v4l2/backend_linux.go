//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/smazurov/qrgrabber/internal/decode"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// frameWaitSeconds bounds each WaitForFrame call so Stop is noticed.
const frameWaitSeconds = 1

func init() {
	platform.Register("v4l2", func(cfg platform.Config) (platform.Backend, error) {
		return New(cfg), nil
	})
}

// Backend implements platform.Backend for V4L2 devices.
type Backend struct {
	device string
	logger *slog.Logger

	mu      sync.Mutex
	claimed *claimedScanner
	open    map[string]*mediaCapture
}

// New creates a V4L2 backend. cfg.Device restricts it to one device path.
func New(cfg platform.Config) *Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		device: cfg.Device,
		logger: logger,
		open:   make(map[string]*mediaCapture),
	}
}

// Name implements platform.Backend.
func (b *Backend) Name() string { return "v4l2" }

// Close implements platform.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	captures := make([]*mediaCapture, 0, len(b.open))
	for _, c := range b.open {
		captures = append(captures, c)
	}
	claimed := b.claimed
	b.mu.Unlock()

	var errs []error
	for _, c := range captures {
		errs = append(errs, c.Close())
	}
	if claimed != nil {
		errs = append(errs, claimed.Release())
	}
	return errors.Join(errs...)
}

func (b *Backend) devices() ([]deviceInfo, error) {
	devices, err := findDevices(sysfsRoot)
	if err != nil {
		return nil, err
	}
	if b.device == "" {
		return devices, nil
	}
	for _, d := range devices {
		if d.Path == b.device || d.StableID == b.device {
			return []deviceInfo{d}, nil
		}
	}
	return nil, fmt.Errorf("device %s: %w", b.device, platform.ErrSourceNotFound)
}

// FindSourceGroups implements platform.MediaService. Every capture-capable
// node becomes a group with one color source.
func (b *Backend) FindSourceGroups(_ context.Context) ([]platform.SourceGroup, error) {
	devices, err := b.devices()
	if err != nil {
		return nil, err
	}

	var groups []platform.SourceGroup
	for _, d := range devices {
		b.mu.Lock()
		busy := b.open[d.Path]
		b.mu.Unlock()

		var formats []platform.Format
		if busy != nil {
			formats = busy.formats
		} else {
			cam, err := webcam.Open(d.Path)
			if err != nil {
				b.logger.Debug("Skipping video node", "path", d.Path, "error", err)
				continue
			}
			formats = cameraFormats(cam)
			_ = cam.Close()
		}
		if len(formats) == 0 {
			b.logger.Debug("Skipping video node without usable formats", "path", d.Path)
			continue
		}
		groups = append(groups, platform.SourceGroup{
			ID:          d.Path,
			DisplayName: d.Name,
			Sources: []platform.SourceInfo{{
				ID:         d.Path,
				StreamType: platform.StreamTypeVideoRecord,
				Kind:       platform.SourceKindColor,
				Formats:    formats,
			}},
		})
	}
	return groups, nil
}

// Initialize implements platform.MediaService. The device is opened from
// settings.SourceGroupID, falling back to VideoDeviceID.
func (b *Backend) Initialize(_ context.Context, settings platform.InitSettings) (platform.MediaCapture, error) {
	path := settings.SourceGroupID
	if path == "" {
		path = settings.VideoDeviceID
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.open[path]; busy {
		return nil, fmt.Errorf("%s is already in use", path)
	}

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	c := &mediaCapture{
		backend: b,
		path:    path,
		cam:     cam,
		formats: cameraFormats(cam),
	}
	b.open[path] = c
	return c, nil
}

// DefaultScanner implements platform.ScannerService. The first usable
// video device doubles as a software scanner.
func (b *Backend) DefaultScanner(ctx context.Context) (platform.BarcodeScanner, error) {
	groups, err := b.FindSourceGroups(ctx)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, platform.ErrNoScanner
	}
	return &barcodeScanner{backend: b, id: groups[0].DisplayName, device: groups[0].ID}, nil
}

func (b *Backend) feed(device string, bm *platform.Bitmap) {
	b.mu.Lock()
	claimed := b.claimed
	b.mu.Unlock()
	if claimed != nil && claimed.device == device {
		claimed.Feed(bm)
	}
}

type mediaCapture struct {
	backend *Backend
	path    string
	cam     *webcam.Webcam
	formats []platform.Format

	mu     sync.Mutex
	format platform.Format
	reader *frameReader
	closed bool
}

func (c *mediaCapture) FrameSource(id string) (platform.FrameSource, error) {
	if id != c.path {
		return nil, fmt.Errorf("%s: %w", id, platform.ErrSourceNotFound)
	}
	return &frameSource{capture: c}, nil
}

func (c *mediaCapture) CreateFrameReader(_ context.Context, _ platform.FrameSource) (platform.FrameReader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("capture closed")
	}
	if c.format.Subtype == "" {
		return nil, errors.New("no format applied")
	}
	c.reader = &frameReader{capture: c, logger: c.backend.logger.With("device", c.path)}
	return c.reader, nil
}

func (c *mediaCapture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	reader := c.reader
	c.mu.Unlock()

	if reader != nil {
		_ = reader.Stop(context.Background())
	}
	err := c.cam.Close()

	c.backend.mu.Lock()
	delete(c.backend.open, c.path)
	c.backend.mu.Unlock()
	return err
}

type frameSource struct {
	capture *mediaCapture
}

func (s *frameSource) Info() platform.SourceInfo {
	return platform.SourceInfo{
		ID:         s.capture.path,
		StreamType: platform.StreamTypeVideoRecord,
		Kind:       platform.SourceKindColor,
		Formats:    s.capture.formats,
	}
}

func (s *frameSource) SupportedFormats() []platform.Format {
	return s.capture.formats
}

func (s *frameSource) SetFormat(_ context.Context, format platform.Format) error {
	c := s.capture
	pf, w, h, err := c.cam.SetImageFormat(fourcc(format.Subtype), format.Width, format.Height)
	if err != nil {
		return fmt.Errorf("set format %s: %w", format, err)
	}
	applied := platform.Format{Subtype: fourccString(pf), Width: w, Height: h}
	if applied != format {
		c.backend.logger.Info("Driver adjusted format", "requested", format.String(), "applied", applied.String())
	}
	c.mu.Lock()
	c.format = applied
	c.mu.Unlock()
	return nil
}

type frameReader struct {
	capture *mediaCapture
	logger  *slog.Logger

	mu      sync.Mutex
	handler platform.FrameArrivedHandler
	latest  *platform.Frame
	seq     uint64
	cancel  context.CancelFunc
	done    chan struct{}
}

func (r *frameReader) SetFrameArrivedHandler(handler platform.FrameArrivedHandler) {
	r.mu.Lock()
	r.handler = handler
	r.mu.Unlock()
}

func (r *frameReader) TryAcquireLatestFrame() (*platform.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.latest
	r.latest = nil
	return f, nil
}

func (r *frameReader) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("reader already started")
	}
	if err := r.capture.cam.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	return nil
}

func (r *frameReader) Stop(_ context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.latest = nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return r.capture.cam.StopStreaming()
}

func (r *frameReader) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.capture.mu.Lock()
	format := r.capture.format
	r.capture.mu.Unlock()
	pixel := pixelFormatFor(format.Subtype)

	for ctx.Err() == nil {
		err := r.capture.cam.WaitForFrame(frameWaitSeconds)
		var timeout *webcam.Timeout
		switch {
		case err == nil:
		case errors.As(err, &timeout):
			continue
		default:
			r.logger.Warn("Waiting for frame failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		data, err := r.capture.cam.ReadFrame()
		if err != nil {
			r.logger.Warn("Reading frame failed", "error", err)
			continue
		}
		if len(data) == 0 {
			continue
		}
		// ReadFrame returns the driver's mmap buffer, which is requeued
		bm := &platform.Bitmap{
			Format: pixel,
			Width:  int(format.Width),
			Height: int(format.Height),
			Data:   append([]byte(nil), data...),
		}

		r.mu.Lock()
		r.seq++
		r.latest = &platform.Frame{Seq: r.seq, Timestamp: time.Now(), Bitmap: bm}
		handler := r.handler
		r.mu.Unlock()

		if handler != nil {
			handler(r)
		}
		r.capture.backend.feed(r.capture.path, bm)
	}
}

type barcodeScanner struct {
	backend *Backend
	id      string
	device  string
}

func (s *barcodeScanner) ID() string            { return s.id }
func (s *barcodeScanner) VideoDeviceID() string { return s.device }

func (s *barcodeScanner) Claim(_ context.Context) (platform.ClaimedScanner, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claimed != nil {
		return nil, platform.ErrScannerClaimed
	}
	c := &claimedScanner{device: s.device}
	c.Scanner = decode.NewScanner(b.logger.With("scanner", s.id), decode.WithReleaseHook(func() {
		b.mu.Lock()
		if b.claimed == c {
			b.claimed = nil
		}
		b.mu.Unlock()
	}))
	b.claimed = c
	return c, nil
}

// claimedScanner is a software scanner fed from the frames of one device.
type claimedScanner struct {
	*decode.Scanner
	device string
}
