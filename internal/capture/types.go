// Package capture negotiates a color video source, owns the capture session
// bound to it, and relays arriving frames to a pixel sink.
package capture

import (
	"fmt"
	"time"

	"github.com/smazurov/qrgrabber/internal/platform"
)

// DefaultMaxWidth is the widest frame format the negotiator accepts.
const DefaultMaxWidth = 800

// Resolution is a negotiated frame size.
type Resolution struct {
	Width  int `json:"width" example:"800" doc:"Frame width in pixels"`
	Height int `json:"height" example:"600" doc:"Frame height in pixels"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// PixelBuffer is one converted frame: 4*Width*Height bytes of RGBA8 with
// premultiplied alpha, row-major, top to bottom. The sink owns Pix after
// delivery.
type PixelBuffer struct {
	Seq       uint64
	Width     int
	Height    int
	Pix       []byte
	Timestamp time.Time
}

// Sink receives converted frames on the relay's delivery goroutine. A
// returned error is logged and counted; it does not stop the stream.
type Sink func(buf PixelBuffer) error

// SourceDescriptor identifies the negotiated color source.
type SourceDescriptor struct {
	GroupID  string
	SourceID string
	Formats  []platform.Format
}

// FormatConstraint reports whether a format is acceptable.
type FormatConstraint func(platform.Format) bool

// MaxWidth accepts formats no wider than n pixels.
func MaxWidth(n int) FormatConstraint {
	return func(f platform.Format) bool {
		return int(f.Width) <= n
	}
}
