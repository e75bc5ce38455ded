package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeStopped = "stopped"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrgrabber",
		Subsystem: "scan",
		Name:      "scans_total",
		Help:      "Finished scans by outcome",
	}, []string{"outcome"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qrgrabber",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Time from scan start to completion",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	decodeIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrgrabber",
		Subsystem: "scan",
		Name:      "decode_events_ignored_total",
		Help:      "Decode events that arrived after the scan result was set",
	})

	scanActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qrgrabber",
		Subsystem: "scan",
		Name:      "active",
		Help:      "1 while a scan is in progress",
	})

	scanCache   = make(map[string]uint64)
	scanCacheMu sync.RWMutex
)

// ScanStarted marks a scan as in progress.
func ScanStarted() {
	scanActive.Set(1)
}

// ScanFinished records the outcome and duration of a scan.
func ScanFinished(outcome string, elapsed time.Duration) {
	scanActive.Set(0)
	scansTotal.WithLabelValues(outcome).Inc()
	scanDuration.Observe(elapsed.Seconds())

	scanCacheMu.Lock()
	scanCache[outcome]++
	scanCacheMu.Unlock()
}

// DecodeIgnored records a decode event discarded by the scan gate.
func DecodeIgnored() {
	decodeIgnored.Inc()
}

// GetScanCounts returns finished scan counts keyed by outcome.
func GetScanCounts() map[string]uint64 {
	scanCacheMu.RLock()
	defer scanCacheMu.RUnlock()
	result := make(map[string]uint64, len(scanCache))
	for k, v := range scanCache {
		result[k] = v
	}
	return result
}
