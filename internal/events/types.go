package events

// Event type constants for kelindar/event.
const (
	TypeDevicePrepared uint32 = iota + 1
	TypeScanStarted
	TypeScanCompleted
	TypeScanAborted
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DevicePreparedEvent is published once a scanner is claimed and its video
// source negotiated.
type DevicePreparedEvent struct {
	ScannerID     string `json:"scanner_id" example:"/dev/video0" doc:"Claimed scanner identifier"`
	VideoDeviceID string `json:"video_device_id" example:"/dev/video0" doc:"Video device bound to the capture"`
	Width         int    `json:"width" example:"800" doc:"Negotiated frame width"`
	Height        int    `json:"height" example:"600" doc:"Negotiated frame height"`
	Timestamp     string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DevicePreparedEvent.
func (e DevicePreparedEvent) Type() uint32 { return TypeDevicePrepared }

// ScanStartedEvent is published when a scan begins waiting for a decode.
type ScanStartedEvent struct {
	ScanID    string `json:"scan_id" doc:"Scan identifier"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ScanStartedEvent.
func (e ScanStartedEvent) Type() uint32 { return TypeScanStarted }

// ScanCompletedEvent is published when a scan produced a result.
type ScanCompletedEvent struct {
	ScanID     string `json:"scan_id" doc:"Scan identifier"`
	Label      string `json:"label" example:"https://example.com" doc:"Decoded payload"`
	Symbology  string `json:"symbology,omitempty" example:"QR_CODE" doc:"Barcode symbology"`
	DurationMs int64  `json:"duration_ms" example:"1250" doc:"Time from scan start to decode"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ScanCompletedEvent.
func (e ScanCompletedEvent) Type() uint32 { return TypeScanCompleted }

// ScanAbortedEvent is published when a scan ended without a result.
type ScanAbortedEvent struct {
	ScanID    string `json:"scan_id" doc:"Scan identifier"`
	Reason    string `json:"reason" example:"scan stopped" doc:"Why the scan ended"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ScanAbortedEvent.
func (e ScanAbortedEvent) Type() uint32 { return TypeScanAborted }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"scan" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
