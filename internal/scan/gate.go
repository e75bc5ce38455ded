// Package scan coordinates one-shot barcode scans: it claims a scanner,
// drives the capture session and waits for exactly one decode result.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/smazurov/qrgrabber/internal/platform"
)

// ErrInvalidLabel is returned for decode payloads that are not valid UTF-8.
var ErrInvalidLabel = errors.New("decoded label is not valid UTF-8")

// Result is the outcome of a successful scan.
type Result struct {
	ScanID    string    `json:"scan_id" doc:"Scan identifier"`
	Label     string    `json:"label" example:"https://example.com" doc:"Human-readable decoded payload"`
	Data      []byte    `json:"data" doc:"Raw decoded bytes"`
	Symbology string    `json:"symbology,omitempty" example:"QR_CODE" doc:"Barcode symbology"`
	DecodedAt time.Time `json:"decoded_at" doc:"When the decode event arrived"`
}

// Gate is a one-shot latch set from a decode callback goroutine and awaited
// by the scanning caller. Once set it stays set until Reset.
type Gate struct {
	mu     sync.Mutex
	done   chan struct{}
	set    bool
	result Result
	err    error
	scanID string
}

// NewGate creates an unset gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Reset unsets the gate for a new scan.
func (g *Gate) Reset(scanID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done = make(chan struct{})
	g.set = false
	g.result = Result{}
	g.err = nil
	g.scanID = scanID
}

// OnDecodeEvent sets the gate from a scan report. It reports whether this
// event set the gate; events after the first are ignored. A report whose
// label is not valid UTF-8 is rejected and leaves the gate unset.
func (g *Gate) OnDecodeEvent(report platform.ScanReport) (bool, error) {
	raw := report.ScanDataLabel
	if len(raw) == 0 {
		raw = report.ScanData
	}
	if !utf8.Valid(raw) {
		return false, ErrInvalidLabel
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set {
		return false, nil
	}
	g.result = Result{
		ScanID:    g.scanID,
		Label:     string(raw),
		Data:      append([]byte(nil), report.ScanData...),
		Symbology: report.Symbology,
		DecodedAt: time.Now(),
	}
	g.set = true
	close(g.done)
	return true, nil
}

// Abort sets the gate with an error so a waiting caller is released. It
// reports false if the gate was already set.
func (g *Gate) Abort(err error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set {
		return false
	}
	g.err = err
	g.set = true
	close(g.done)
	return true
}

// Await blocks until the gate is set or ctx is done.
func (g *Gate) Await(ctx context.Context) (Result, error) {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result, g.err
}

// IsSet reports whether the gate has been set for the current scan.
func (g *Gate) IsSet() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set
}
