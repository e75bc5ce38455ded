//go:build opencv

// Package opencv is a capture backend built on OpenCV's VideoCapture, with
// OpenCV's QR detector as the software scanner. Build with -tags opencv.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/smazurov/qrgrabber/internal/decode"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// OpenCV cannot enumerate sizes, so these are requested in turn.
var candidateFormats = []platform.Format{
	{Subtype: "BGR3", Width: 1280, Height: 720},
	{Subtype: "BGR3", Width: 800, Height: 600},
	{Subtype: "BGR3", Width: 640, Height: 480},
}

func init() {
	platform.Register("opencv", func(cfg platform.Config) (platform.Backend, error) {
		return New(cfg), nil
	})
}

// Backend implements platform.Backend on one OpenCV camera.
type Backend struct {
	device string
	logger *slog.Logger

	mu      sync.Mutex
	claimed *claimedScanner
	capture *mediaCapture
}

// New creates an OpenCV backend. cfg.Device is a camera index or a path;
// empty means camera 0.
func New(cfg platform.Config) *Backend {
	device := cfg.Device
	if device == "" {
		device = "0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{device: device, logger: logger}
}

// Name implements platform.Backend.
func (b *Backend) Name() string { return "opencv" }

// Close implements platform.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	c, claimed := b.capture, b.claimed
	b.mu.Unlock()
	var errs []error
	if c != nil {
		errs = append(errs, c.Close())
	}
	if claimed != nil {
		errs = append(errs, claimed.Release())
	}
	return errors.Join(errs...)
}

func (b *Backend) open() (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(b.device); err == nil {
		return gocv.OpenVideoCapture(id)
	}
	return gocv.OpenVideoCapture(b.device)
}

// FindSourceGroups implements platform.MediaService.
func (b *Backend) FindSourceGroups(_ context.Context) ([]platform.SourceGroup, error) {
	b.mu.Lock()
	busy := b.capture != nil
	b.mu.Unlock()
	if !busy {
		vc, err := b.open()
		if err != nil {
			return nil, nil
		}
		opened := vc.IsOpened()
		_ = vc.Close()
		if !opened {
			return nil, nil
		}
	}
	return []platform.SourceGroup{{
		ID:          b.device,
		DisplayName: "OpenCV camera " + b.device,
		Sources: []platform.SourceInfo{{
			ID:         b.device,
			StreamType: platform.StreamTypeVideoRecord,
			Kind:       platform.SourceKindColor,
			Formats:    candidateFormats,
		}},
	}}, nil
}

// Initialize implements platform.MediaService.
func (b *Backend) Initialize(_ context.Context, _ platform.InitSettings) (platform.MediaCapture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture != nil {
		return nil, fmt.Errorf("camera %s is already in use", b.device)
	}
	vc, err := b.open()
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", b.device, err)
	}
	c := &mediaCapture{backend: b, vc: vc}
	b.capture = c
	return c, nil
}

// DefaultScanner implements platform.ScannerService.
func (b *Backend) DefaultScanner(ctx context.Context) (platform.BarcodeScanner, error) {
	groups, err := b.FindSourceGroups(ctx)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, platform.ErrNoScanner
	}
	return &barcodeScanner{backend: b}, nil
}

func (b *Backend) feed(bm *platform.Bitmap) {
	b.mu.Lock()
	claimed := b.claimed
	b.mu.Unlock()
	if claimed != nil {
		claimed.Feed(bm)
	}
}

type mediaCapture struct {
	backend *Backend
	vc      *gocv.VideoCapture

	mu     sync.Mutex
	format platform.Format
	reader *frameReader
	closed bool
}

func (c *mediaCapture) FrameSource(id string) (platform.FrameSource, error) {
	if id != c.backend.device {
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
	c.reader = &frameReader{capture: c}
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
	err := c.vc.Close()
	c.backend.mu.Lock()
	c.backend.capture = nil
	c.backend.mu.Unlock()
	return err
}

type frameSource struct {
	capture *mediaCapture
}

func (s *frameSource) Info() platform.SourceInfo {
	return platform.SourceInfo{
		ID:         s.capture.backend.device,
		StreamType: platform.StreamTypeVideoRecord,
		Kind:       platform.SourceKindColor,
		Formats:    candidateFormats,
	}
}

func (s *frameSource) SupportedFormats() []platform.Format { return candidateFormats }

func (s *frameSource) SetFormat(_ context.Context, format platform.Format) error {
	vc := s.capture.vc
	vc.Set(gocv.VideoCaptureFrameWidth, float64(format.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(format.Height))
	applied := platform.Format{
		Subtype: format.Subtype,
		Width:   uint32(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:  uint32(vc.Get(gocv.VideoCaptureFrameHeight)),
	}
	s.capture.mu.Lock()
	s.capture.format = applied
	s.capture.mu.Unlock()
	return nil
}

type frameReader struct {
	capture *mediaCapture

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
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (r *frameReader) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	logger := r.capture.backend.logger

	mat := gocv.NewMat()
	defer mat.Close()

	for ctx.Err() == nil {
		if ok := r.capture.vc.Read(&mat); !ok || mat.Empty() {
			select {
			case <-ctx.Done():
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}
		bm, err := matBitmap(mat)
		if err != nil {
			logger.Warn("Frame conversion failed", "error", err)
			continue
		}

		r.mu.Lock()
		r.seq++
		r.latest = &platform.Frame{Seq: r.seq, Timestamp: time.Now(), Bitmap: bm}
		handler := r.handler
		r.mu.Unlock()

		if handler != nil {
			handler(r)
		}
		r.capture.backend.feed(bm)
	}
}

// matBitmap copies a BGR mat into an opaque RGBA bitmap.
func matBitmap(mat gocv.Mat) (*platform.Bitmap, error) {
	img, err := mat.ToImage()
	if err != nil {
		return nil, err
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("unexpected image type %T", img)
	}
	return &platform.Bitmap{
		Format: platform.PixelFormatRGBA8,
		Alpha:  platform.AlphaModeIgnore,
		Width:  rgba.Rect.Dx(),
		Height: rgba.Rect.Dy(),
		Stride: rgba.Stride,
		Data:   rgba.Pix,
	}, nil
}

type barcodeScanner struct {
	backend *Backend
}

func (s *barcodeScanner) ID() string            { return "opencv-" + s.backend.device }
func (s *barcodeScanner) VideoDeviceID() string { return s.backend.device }

func (s *barcodeScanner) Claim(_ context.Context) (platform.ClaimedScanner, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claimed != nil {
		return nil, platform.ErrScannerClaimed
	}
	c := &claimedScanner{}
	c.Scanner = decode.NewScanner(b.logger,
		decode.WithDecoderFactory(func() decode.Decoder { return &cvDecoder{} }),
		decode.WithReleaseHook(func() {
			b.mu.Lock()
			if b.claimed == c {
				b.claimed = nil
			}
			b.mu.Unlock()
		}))
	b.claimed = c
	return c, nil
}

type claimedScanner struct {
	*decode.Scanner
}

// cvDecoder decodes with cv::QRCodeDetector.
type cvDecoder struct{}

func (d *cvDecoder) Decode(img image.Image) (decode.Decoded, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return decode.Decoded{}, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	detector := gocv.NewQRCodeDetector()
	defer detector.Close()
	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	text := detector.DetectAndDecode(mat, &points, &straight)
	if text == "" {
		return decode.Decoded{}, decode.ErrNotFound
	}
	return decode.Decoded{Text: text, Raw: []byte(text), Symbology: "QR_CODE"}, nil
}
