package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/events"
	"github.com/smazurov/qrgrabber/internal/metrics"
	"github.com/smazurov/qrgrabber/internal/platform"
)

var (
	// ErrScanInProgress is returned when a scan is started while another is pending.
	ErrScanInProgress = errors.New("scan already in progress")
	// ErrScanStopped is returned to a waiting StartScan when StopScan is called.
	ErrScanStopped = errors.New("scan stopped")
	// ErrScanTimeout is returned when no code was decoded within the scan timeout.
	ErrScanTimeout = errors.New("scan timed out")
	// ErrNotPrepared is returned by StartScan before PrepareDevice succeeded.
	ErrNotPrepared = errors.New("device not prepared")
	// ErrNoScanner is returned when no scanning-capable device is present.
	ErrNoScanner = platform.ErrNoScanner
)

// Publisher receives scan lifecycle events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Controller.
type Options struct {
	Media    platform.MediaService
	Scanners platform.ScannerService
	Events   Publisher
	// MaxWidth bounds the negotiated frame width. Zero means capture.DefaultMaxWidth.
	MaxWidth int
	// ScanTimeout bounds StartScan. Zero waits until a decode or StopScan.
	ScanTimeout time.Duration
	Logger      *slog.Logger
}

// Controller sequences device preparation, one scan at a time, and teardown.
type Controller struct {
	scanners    platform.ScannerService
	events      Publisher
	scanTimeout time.Duration
	logger      *slog.Logger

	relay   *capture.Relay
	session *capture.Session
	gate    *Gate

	// teardownMu serializes releasing the session and claim. It is taken
	// before mu.
	teardownMu sync.Mutex

	mu       sync.Mutex
	scanner  platform.BarcodeScanner
	claimed  platform.ClaimedScanner
	scanning bool
	scanID   string
}

// NewController creates a controller. Media and Scanners are required.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	relay := capture.NewRelay(logger)
	return &Controller{
		scanners:    opts.Scanners,
		events:      opts.Events,
		scanTimeout: opts.ScanTimeout,
		logger:      logger,
		relay:       relay,
		session:     capture.NewSession(opts.Media, relay, opts.MaxWidth, logger),
		gate:        NewGate(),
	}
}

// PrepareDevice claims the default scanner, enables decoding and prepares
// the capture session on the scanner's video device. Any failure leaves
// nothing claimed. Calling it again while idle re-claims from scratch.
func (c *Controller) PrepareDevice(ctx context.Context) (capture.Resolution, error) {
	c.teardownMu.Lock()
	defer c.teardownMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scanning {
		return capture.Resolution{}, ErrScanInProgress
	}
	c.releaseLocked(ctx)

	scanner, err := c.scanners.DefaultScanner(ctx)
	if err != nil {
		if errors.Is(err, platform.ErrNoScanner) {
			return capture.Resolution{}, ErrNoScanner
		}
		return capture.Resolution{}, fmt.Errorf("find default scanner: %w", err)
	}
	if scanner == nil {
		return capture.Resolution{}, ErrNoScanner
	}

	claimed, err := scanner.Claim(ctx)
	if err != nil {
		return capture.Resolution{}, fmt.Errorf("claim scanner %s: %w", scanner.ID(), err)
	}
	claimed.SetDataReceivedHandler(c.onDecode)
	claimed.SetDecodeDataEnabled(true)

	if err := claimed.Enable(ctx); err != nil {
		c.releaseClaim(ctx, claimed)
		return capture.Resolution{}, fmt.Errorf("enable scanner %s: %w", scanner.ID(), err)
	}

	res, err := c.session.Prepare(ctx, scanner.VideoDeviceID())
	if err != nil {
		c.releaseClaim(ctx, claimed)
		return capture.Resolution{}, err
	}

	c.scanner = scanner
	c.claimed = claimed

	c.logger.Info("Scanner prepared", "scanner", scanner.ID(), "video_device", scanner.VideoDeviceID(), "resolution", res.String())
	c.publish(events.DevicePreparedEvent{
		ScannerID:     scanner.ID(),
		VideoDeviceID: scanner.VideoDeviceID(),
		Width:         res.Width,
		Height:        res.Height,
		Timestamp:     now(),
	})
	return res, nil
}

// StartScan streams frames to sink and blocks until one code is decoded,
// StopScan is called, the scan timeout passes or ctx is done. The session
// is torn down before StartScan returns, whatever the outcome.
func (c *Controller) StartScan(ctx context.Context, sink capture.Sink) (Result, error) {
	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return Result{}, ErrScanInProgress
	}
	if c.claimed == nil || !c.session.Prepared() {
		c.mu.Unlock()
		return Result{}, ErrNotPrepared
	}
	c.scanning = true
	scanID := uuid.NewString()
	c.scanID = scanID
	c.gate.Reset(scanID)
	c.relay.SetSink(sink)
	claimed := c.claimed
	c.mu.Unlock()

	started := time.Now()
	logger := c.logger.With("scan_id", scanID)
	metrics.ScanStarted()
	c.publish(events.ScanStartedEvent{ScanID: scanID, Timestamp: now()})

	res, err := c.run(ctx, claimed, logger)

	if terr := c.teardown(context.WithoutCancel(ctx)); terr != nil {
		logger.Warn("Scan teardown reported errors", "error", terr)
	}

	c.mu.Lock()
	c.scanning = false
	c.relay.SetSink(nil)
	c.mu.Unlock()

	elapsed := time.Since(started)
	c.finish(scanID, res, err, elapsed, logger)
	return res, err
}

func (c *Controller) run(ctx context.Context, claimed platform.ClaimedScanner, logger *slog.Logger) (Result, error) {
	if err := claimed.StartSoftwareTrigger(ctx); err != nil {
		// scanners without a software trigger decode continuously once enabled
		logger.Warn("Failed to start software trigger", "error", err)
	}

	if err := c.session.Start(ctx); err != nil {
		if !c.gate.IsSet() {
			c.gate.Abort(err)
			return Result{}, err
		}
		logger.Debug("Session start failed after the gate was set", "error", err)
	}

	waitCtx := ctx
	if timeout := c.ScanTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := c.gate.Await(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrScanTimeout
		}
		// later decode events for this scan must not set the gate
		c.gate.Abort(err)
		return Result{}, err
	}
	return res, nil
}

func (c *Controller) finish(scanID string, res Result, err error, elapsed time.Duration, logger *slog.Logger) {
	if err == nil {
		metrics.ScanFinished(metrics.OutcomeSuccess, elapsed)
		logger.Info("Scan completed", "label", res.Label, "symbology", res.Symbology, "elapsed", elapsed)
		c.publish(events.ScanCompletedEvent{
			ScanID:     scanID,
			Label:      res.Label,
			Symbology:  res.Symbology,
			DurationMs: elapsed.Milliseconds(),
			Timestamp:  now(),
		})
		return
	}

	outcome := metrics.OutcomeError
	switch {
	case errors.Is(err, ErrScanStopped), errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeStopped
	case errors.Is(err, ErrScanTimeout):
		outcome = metrics.OutcomeTimeout
	}
	metrics.ScanFinished(outcome, elapsed)
	logger.Info("Scan ended without result", "outcome", outcome, "error", err)
	c.publish(events.ScanAbortedEvent{ScanID: scanID, Reason: err.Error(), Timestamp: now()})
}

// StopScan releases a waiting StartScan with ErrScanStopped and tears the
// session down. Without an active scan or session it is a no-op.
func (c *Controller) StopScan(ctx context.Context) error {
	c.mu.Lock()
	if c.scanning {
		c.gate.Abort(ErrScanStopped)
	}
	c.mu.Unlock()
	return c.teardown(ctx)
}

// Close stops any scan and releases the device.
func (c *Controller) Close() error {
	return c.StopScan(context.Background())
}

// Prepared reports whether a scanner is claimed and the session prepared.
func (c *Controller) Prepared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed != nil && c.session.Prepared()
}

// Scanning reports whether a scan is pending.
func (c *Controller) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// ScanID returns the id of the current or most recent scan.
func (c *Controller) ScanID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanID
}

// SetScanTimeout changes the timeout for scans started afterwards.
func (c *Controller) SetScanTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	c.scanTimeout = d
	c.mu.Unlock()
}

// ScanTimeout returns the current scan timeout. Zero means none.
func (c *Controller) ScanTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanTimeout
}

// RelayStats returns the frame relay counters.
func (c *Controller) RelayStats() capture.RelayStats {
	return c.relay.Stats()
}

func (c *Controller) onDecode(report platform.ScanReport) {
	set, err := c.gate.OnDecodeEvent(report)
	if err != nil {
		c.logger.Warn("Discarding decode event", "symbology", report.Symbology, "error", err)
		return
	}
	if !set {
		metrics.DecodeIgnored()
		c.logger.Debug("Ignoring decode event after result was set")
	}
}

// teardown stops the session and releases the claimed scanner. Safe to call
// repeatedly and concurrently; a concurrent caller returns only after the
// release in progress has finished.
func (c *Controller) teardown(ctx context.Context) error {
	c.teardownMu.Lock()
	defer c.teardownMu.Unlock()

	c.mu.Lock()
	claimed := c.claimed
	c.claimed = nil
	c.scanner = nil
	c.mu.Unlock()

	var errs []error
	if err := c.session.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop session: %w", err))
	}
	if claimed != nil {
		errs = append(errs, c.releaseClaim(ctx, claimed))
	}
	return errors.Join(errs...)
}

func (c *Controller) releaseLocked(ctx context.Context) {
	claimed := c.claimed
	c.claimed = nil
	c.scanner = nil
	if err := c.session.Stop(ctx); err != nil {
		c.logger.Warn("Failed to stop previous session", "error", err)
	}
	if claimed != nil {
		if err := c.releaseClaim(ctx, claimed); err != nil {
			c.logger.Warn("Failed to release previous scanner", "error", err)
		}
	}
}

func (c *Controller) releaseClaim(ctx context.Context, claimed platform.ClaimedScanner) error {
	var errs []error
	if err := claimed.StopSoftwareTrigger(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop trigger: %w", err))
	}
	if err := claimed.Disable(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disable scanner: %w", err))
	}
	if err := claimed.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release scanner: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Controller) publish(ev events.Event) {
	if c.events != nil {
		c.events.Publish(ev)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
