// Package metrics provides Prometheus metrics for the capture pipeline and
// scan controller.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame drop reasons.
const (
	DropEmpty      = "empty"
	DropNoBitmap   = "no_bitmap"
	DropAcquire    = "acquire_error"
	DropConvert    = "convert_error"
	DropOverwrite  = "overwritten"
	DropNotStarted = "not_started"
)

var (
	framesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrgrabber",
		Subsystem: "capture",
		Name:      "frames_delivered_total",
		Help:      "Frames handed to the pixel sink",
	})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrgrabber",
		Subsystem: "capture",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped before reaching the sink",
	}, []string{"reason"})

	sinkFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrgrabber",
		Subsystem: "capture",
		Name:      "sink_failures_total",
		Help:      "Sink invocations that returned an error or panicked",
	})

	frameWidth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qrgrabber",
		Subsystem: "capture",
		Name:      "frame_width_pixels",
		Help:      "Negotiated frame width",
	})

	frameHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qrgrabber",
		Subsystem: "capture",
		Name:      "frame_height_pixels",
		Help:      "Negotiated frame height",
	})

	// Local copy for the TUI and /api/health.
	captureCache   CaptureStats
	captureCacheMu sync.RWMutex
)

// CaptureStats holds current capture counter values.
type CaptureStats struct {
	Delivered    uint64
	Dropped      uint64
	SinkFailures uint64
	Width        int
	Height       int
}

// FrameDelivered records a frame handed to the sink.
func FrameDelivered() {
	framesDelivered.Inc()
	captureCacheMu.Lock()
	captureCache.Delivered++
	captureCacheMu.Unlock()
}

// FrameDropped records a dropped frame.
func FrameDropped(reason string) {
	framesDropped.WithLabelValues(reason).Inc()
	captureCacheMu.Lock()
	captureCache.Dropped++
	captureCacheMu.Unlock()
}

// SinkFailed records a failed sink invocation.
func SinkFailed() {
	sinkFailures.Inc()
	captureCacheMu.Lock()
	captureCache.SinkFailures++
	captureCacheMu.Unlock()
}

// SetResolution records the negotiated frame size.
func SetResolution(width, height int) {
	frameWidth.Set(float64(width))
	frameHeight.Set(float64(height))
	captureCacheMu.Lock()
	captureCache.Width = width
	captureCache.Height = height
	captureCacheMu.Unlock()
}

// GetCaptureStats returns a copy of the current capture counters.
func GetCaptureStats() CaptureStats {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	return captureCache
}
