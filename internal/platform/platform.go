package platform

import (
	"context"
	"errors"
)

var (
	// ErrNoScanner is returned when no scanning-capable device is present.
	ErrNoScanner = errors.New("no barcode scanner available")
	// ErrScannerClaimed is returned when a scanner is already claimed.
	ErrScannerClaimed = errors.New("barcode scanner already claimed")
	// ErrSourceNotFound is returned when a frame source id is unknown.
	ErrSourceNotFound = errors.New("frame source not found")
)

// FrameArrivedHandler is invoked by a FrameReader each time a frame becomes
// available. It runs on the backend's delivery goroutine and must not block.
type FrameArrivedHandler func(reader FrameReader)

// DataReceivedHandler is invoked by a ClaimedScanner for each decode event.
// It runs on the backend's goroutine and must not block.
type DataReceivedHandler func(report ScanReport)

// MediaService enumerates sources and initializes captures.
type MediaService interface {
	FindSourceGroups(ctx context.Context) ([]SourceGroup, error)
	Initialize(ctx context.Context, settings InitSettings) (MediaCapture, error)
}

// MediaCapture is an initialized capture bound to one source group.
type MediaCapture interface {
	FrameSource(id string) (FrameSource, error)
	CreateFrameReader(ctx context.Context, source FrameSource) (FrameReader, error)
	Close() error
}

// FrameSource is one source of an initialized capture.
type FrameSource interface {
	Info() SourceInfo
	SupportedFormats() []Format
	SetFormat(ctx context.Context, format Format) error
}

// FrameReader delivers frames from a FrameSource.
type FrameReader interface {
	SetFrameArrivedHandler(handler FrameArrivedHandler)
	// TryAcquireLatestFrame returns the most recent frame, or nil when no
	// frame is available.
	TryAcquireLatestFrame() (*Frame, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ScannerService locates barcode scanners.
type ScannerService interface {
	DefaultScanner(ctx context.Context) (BarcodeScanner, error)
}

// BarcodeScanner is an unclaimed scanning-capable device.
type BarcodeScanner interface {
	ID() string
	VideoDeviceID() string
	Claim(ctx context.Context) (ClaimedScanner, error)
}

// ClaimedScanner is an exclusively held scanner.
type ClaimedScanner interface {
	SetDataReceivedHandler(handler DataReceivedHandler)
	SetDecodeDataEnabled(enabled bool)
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	StartSoftwareTrigger(ctx context.Context) error
	StopSoftwareTrigger(ctx context.Context) error
	Release() error
}

// Backend bundles the media and scanner halves of a platform.
type Backend interface {
	MediaService
	ScannerService
	Name() string
	Close() error
}
