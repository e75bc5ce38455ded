package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/smazurov/qrgrabber/internal/decode"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// Scanner implements platform.BarcodeScanner.
type Scanner struct {
	backend *Backend
}

// ID implements platform.BarcodeScanner.
func (s *Scanner) ID() string { return ScannerID }

// VideoDeviceID implements platform.BarcodeScanner.
func (s *Scanner) VideoDeviceID() string { return GroupID }

// Claim implements platform.BarcodeScanner.
func (s *Scanner) Claim(_ context.Context) (platform.ClaimedScanner, error) {
	b := s.backend
	if b.errs.Claim != nil {
		return nil, b.errs.Claim
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claimed != nil && !b.claimed.Released() {
		return nil, platform.ErrScannerClaimed
	}
	c := &Claimed{backend: b}
	if b.autoplay != nil {
		c.soft = decode.NewScanner(b.logger)
	}
	b.claimed = c
	return c, nil
}

// Claimed implements platform.ClaimedScanner. With autoplay it forwards to a
// software scanner fed from the reader's frames; otherwise tests call Emit.
type Claimed struct {
	backend *Backend
	soft    *decode.Scanner

	mu          sync.Mutex
	handler     platform.DataReceivedHandler
	decodeData  bool
	enabled     bool
	triggered   bool
	released    bool
	triggerRuns int
}

// SetDataReceivedHandler implements platform.ClaimedScanner.
func (c *Claimed) SetDataReceivedHandler(handler platform.DataReceivedHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	if c.soft != nil {
		c.soft.SetDataReceivedHandler(handler)
	}
}

// SetDecodeDataEnabled implements platform.ClaimedScanner.
func (c *Claimed) SetDecodeDataEnabled(enabled bool) {
	c.mu.Lock()
	c.decodeData = enabled
	c.mu.Unlock()
	if c.soft != nil {
		c.soft.SetDecodeDataEnabled(enabled)
	}
}

// Enable implements platform.ClaimedScanner.
func (c *Claimed) Enable(ctx context.Context) error {
	if c.backend.errs.Enable != nil {
		return c.backend.errs.Enable
	}
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return errors.New("scanner released")
	}
	c.enabled = true
	c.mu.Unlock()
	if c.soft != nil {
		return c.soft.Enable(ctx)
	}
	return nil
}

// Disable implements platform.ClaimedScanner.
func (c *Claimed) Disable(ctx context.Context) error {
	if c.backend.onDisable != nil {
		c.backend.onDisable()
	}
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	if c.soft != nil {
		return c.soft.Disable(ctx)
	}
	return nil
}

// StartSoftwareTrigger implements platform.ClaimedScanner.
func (c *Claimed) StartSoftwareTrigger(ctx context.Context) error {
	if c.backend.errs.Trigger != nil {
		return c.backend.errs.Trigger
	}
	c.mu.Lock()
	c.triggered = true
	c.triggerRuns++
	c.mu.Unlock()
	if c.soft != nil {
		return c.soft.StartSoftwareTrigger(ctx)
	}
	return nil
}

// StopSoftwareTrigger implements platform.ClaimedScanner.
func (c *Claimed) StopSoftwareTrigger(ctx context.Context) error {
	c.mu.Lock()
	c.triggered = false
	c.mu.Unlock()
	if c.soft != nil {
		return c.soft.StopSoftwareTrigger(ctx)
	}
	return nil
}

// Release implements platform.ClaimedScanner.
func (c *Claimed) Release() error {
	c.mu.Lock()
	c.released = true
	c.enabled = false
	c.triggered = false
	c.mu.Unlock()
	if c.soft != nil {
		return c.soft.Release()
	}
	return nil
}

// Emit delivers report to the registered handler on the calling goroutine,
// as a hardware decode callback would. It reports whether a handler ran.
func (c *Claimed) Emit(report platform.ScanReport) bool {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(report)
	return true
}

// EmitLabel emits a QR report whose data and label are text.
func (c *Claimed) EmitLabel(text string) bool {
	return c.Emit(platform.ScanReport{
		Symbology:     "QR_CODE",
		ScanData:      []byte(text),
		ScanDataLabel: []byte(text),
	})
}

// Enabled reports whether Enable was called without a later Disable.
func (c *Claimed) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Triggered reports whether the software trigger is held.
func (c *Claimed) Triggered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggered
}

// DecodeDataEnabled reports the last SetDecodeDataEnabled value.
func (c *Claimed) DecodeDataEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decodeData
}

// Released reports whether Release was called.
func (c *Claimed) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *Claimed) feed(bm *platform.Bitmap) {
	if c.soft != nil {
		c.soft.Feed(bm)
	}
}
