package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/smazurov/qrgrabber/internal/metrics"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// Session owns one initialized capture, its negotiated format and the frame
// reader wired to a Relay. The capture and the reader subscription are
// created and released together.
type Session struct {
	media    platform.MediaService
	relay    *Relay
	maxWidth int
	logger   *slog.Logger

	mu      sync.Mutex
	capture platform.MediaCapture
	reader  platform.FrameReader
	format  platform.Format
	started bool
}

// NewSession creates a session that negotiates against media and feeds
// frames into relay. maxWidth <= 0 selects DefaultMaxWidth.
func NewSession(media platform.MediaService, relay *Relay, maxWidth int, logger *slog.Logger) *Session {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		media:    media,
		relay:    relay,
		maxWidth: maxWidth,
		logger:   logger,
	}
}

// Prepare initializes the capture for videoDeviceID, applies the negotiated
// format and creates the frame reader. On any failure nothing stays claimed.
// Preparing an already prepared, idle session replaces it.
func (s *Session) Prepare(ctx context.Context, videoDeviceID string) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return Resolution{}, newError(CodeAlreadyStarted, "session is streaming", nil)
	}
	if s.capture != nil {
		s.logger.Debug("Re-preparing capture session")
		if err := s.closeLocked(ctx); err != nil {
			s.logger.Warn("Failed to release previous capture", "error", err)
		}
	}

	group, desc, err := FindColorSource(ctx, s.media)
	if err != nil {
		return Resolution{}, err
	}

	mc, err := s.media.Initialize(ctx, platform.InitSettings{
		VideoDeviceID:    videoDeviceID,
		SourceGroupID:    group.ID,
		SharingMode:      platform.SharingModeExclusiveControl,
		MemoryPreference: platform.MemoryPreferenceCPU,
		StreamingMode:    platform.StreamingModeVideo,
	})
	if err != nil {
		return Resolution{}, newError(CodeInitFailed, "initialize capture", err)
	}

	fail := func(err error) (Resolution, error) {
		if cerr := mc.Close(); cerr != nil {
			s.logger.Warn("Failed to close capture after setup error", "error", cerr)
		}
		return Resolution{}, err
	}

	source, err := mc.FrameSource(desc.SourceID)
	if err != nil {
		return fail(newError(CodeInitFailed, "open frame source "+desc.SourceID, err))
	}

	// the live source may report more formats than enumeration did
	formats := source.SupportedFormats()
	if len(formats) == 0 {
		formats = desc.Formats
	}
	format, err := SupportedFrameFormat(formats, MaxWidth(s.maxWidth))
	if err != nil {
		return fail(err)
	}
	if err := source.SetFormat(ctx, format); err != nil {
		return fail(newError(CodeInitFailed, "apply format "+format.String(), err))
	}

	reader, err := mc.CreateFrameReader(ctx, source)
	if err != nil {
		return fail(newError(CodeReaderFailed, "create frame reader", err))
	}
	reader.SetFrameArrivedHandler(s.relay.HandleFrameArrived)

	s.capture = mc
	s.reader = reader
	s.format = format

	res := Resolution{Width: int(format.Width), Height: int(format.Height)}
	metrics.SetResolution(res.Width, res.Height)
	s.logger.Info("Capture session prepared",
		"device", videoDeviceID,
		"group", group.DisplayName,
		"source", desc.SourceID,
		"format", format.String())
	return res, nil
}

// Start begins frame delivery.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader == nil {
		return newError(CodeNotPrepared, "session is not prepared", nil)
	}
	if s.started {
		return newError(CodeAlreadyStarted, "session already started", nil)
	}

	s.relay.Start()
	if err := s.reader.Start(ctx); err != nil {
		s.relay.Stop()
		return newError(CodeReaderFailed, "start frame reader", err)
	}
	s.started = true
	s.logger.Debug("Capture session started", "format", s.format.String())
	return nil
}

// Stop stops the reader and releases the capture. Stopping a session that
// was never prepared, or is already stopped, is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	return s.closeLocked(ctx)
}

// Prepared reports whether the session holds a capture.
func (s *Session) Prepared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture != nil
}

// Started reports whether frames are being delivered.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Format returns the negotiated format of a prepared session.
func (s *Session) Format() platform.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

func (s *Session) closeLocked(ctx context.Context) error {
	var errs []error
	if s.started {
		if err := s.reader.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		s.relay.Stop()
		s.started = false
	}
	if err := s.capture.Close(); err != nil {
		errs = append(errs, err)
	}
	s.capture = nil
	s.reader = nil
	s.format = platform.Format{}
	s.logger.Debug("Capture session released")
	return errors.Join(errs...)
}
