// Package platform defines the device and media boundary the capture core
// talks to: source-group enumeration, capture initialization, frame readers,
// and claimable barcode scanners.
//
// Backends (v4l2, opencv, fake) implement these interfaces. Callbacks
// registered through SetFrameArrivedHandler and SetDataReceivedHandler are
// invoked on backend-owned goroutines, never on the caller's goroutine.
package platform

import (
	"fmt"
	"time"
)

// StreamType identifies what a media source is intended for.
type StreamType int

// Stream types.
const (
	StreamTypeVideoPreview StreamType = iota
	StreamTypeVideoRecord
	StreamTypePhoto
	StreamTypeAudio
)

func (s StreamType) String() string {
	switch s {
	case StreamTypeVideoPreview:
		return "video_preview"
	case StreamTypeVideoRecord:
		return "video_record"
	case StreamTypePhoto:
		return "photo"
	case StreamTypeAudio:
		return "audio"
	default:
		return fmt.Sprintf("stream_type(%d)", int(s))
	}
}

// SourceKind distinguishes the visible-light stream from depth/infrared ones.
type SourceKind int

// Source kinds.
const (
	SourceKindCustom SourceKind = iota
	SourceKindColor
	SourceKindInfrared
	SourceKindDepth
)

func (k SourceKind) String() string {
	switch k {
	case SourceKindCustom:
		return "custom"
	case SourceKindColor:
		return "color"
	case SourceKindInfrared:
		return "infrared"
	case SourceKindDepth:
		return "depth"
	default:
		return fmt.Sprintf("source_kind(%d)", int(k))
	}
}

// Format is one frame format a source can deliver.
type Format struct {
	Subtype string // four character code, e.g. "YUYV", "MJPG"
	Width   uint32
	Height  uint32
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dx%d", f.Subtype, f.Width, f.Height)
}

// SourceInfo describes a single media source inside a group.
type SourceInfo struct {
	ID         string
	StreamType StreamType
	Kind       SourceKind
	Formats    []Format
}

// SourceGroup is a set of related sources, e.g. color and depth from one camera.
type SourceGroup struct {
	ID          string
	DisplayName string
	Sources     []SourceInfo
}

// SharingMode controls whether other applications may use the device.
type SharingMode int

// Sharing modes.
const (
	SharingModeExclusiveControl SharingMode = iota
	SharingModeShared
)

// MemoryPreference selects where frame buffers live.
type MemoryPreference int

// Memory preferences.
const (
	MemoryPreferenceCPU MemoryPreference = iota
	MemoryPreferenceAuto
)

// StreamingMode selects which streams are initialized.
type StreamingMode int

// Streaming modes.
const (
	StreamingModeVideo StreamingMode = iota
	StreamingModeAudioAndVideo
)

// InitSettings configures a capture backend initialization.
type InitSettings struct {
	VideoDeviceID    string
	SourceGroupID    string
	SharingMode      SharingMode
	MemoryPreference MemoryPreference
	StreamingMode    StreamingMode
}

// PixelFormat is the layout of a Bitmap's data.
type PixelFormat int

// Pixel formats.
const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatRGBA8
	PixelFormatBGRA8
	PixelFormatGray8
	PixelFormatYUY2
	PixelFormatNV12
	PixelFormatMJPEG
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatRGBA8:
		return "rgba8"
	case PixelFormatBGRA8:
		return "bgra8"
	case PixelFormatGray8:
		return "gray8"
	case PixelFormatYUY2:
		return "yuy2"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatMJPEG:
		return "mjpeg"
	default:
		return "unknown"
	}
}

// AlphaMode describes how the alpha channel of a 4-channel bitmap is stored.
type AlphaMode int

// Alpha modes.
const (
	AlphaModePremultiplied AlphaMode = iota
	AlphaModeStraight
	AlphaModeIgnore
)

// Bitmap is a CPU-side image as handed out by a frame reader.
// Stride may be zero, meaning rows are tightly packed.
type Bitmap struct {
	Format PixelFormat
	Alpha  AlphaMode
	Width  int
	Height int
	Stride int
	Data   []byte
}

// Frame is one acquired video frame. Bitmap is nil when the backend could
// not map the frame into CPU memory.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Bitmap    *Bitmap
}

// ScanReport is the payload of a decode event.
type ScanReport struct {
	Symbology     string
	ScanData      []byte
	ScanDataLabel []byte
}
