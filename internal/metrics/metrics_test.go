package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCaptureStatsCache(t *testing.T) {
	before := GetCaptureStats()

	FrameDelivered()
	FrameDelivered()
	FrameDropped(DropEmpty)
	SinkFailed()
	SetResolution(800, 600)

	after := GetCaptureStats()
	if after.Delivered-before.Delivered != 2 {
		t.Errorf("Delivered delta = %d, want 2", after.Delivered-before.Delivered)
	}
	if after.Dropped-before.Dropped != 1 {
		t.Errorf("Dropped delta = %d, want 1", after.Dropped-before.Dropped)
	}
	if after.SinkFailures-before.SinkFailures != 1 {
		t.Errorf("SinkFailures delta = %d, want 1", after.SinkFailures-before.SinkFailures)
	}
	if after.Width != 800 || after.Height != 600 {
		t.Errorf("resolution = %dx%d, want 800x600", after.Width, after.Height)
	}
}

func TestScanCounts(t *testing.T) {
	before := GetScanCounts()[OutcomeSuccess]

	ScanStarted()
	ScanFinished(OutcomeSuccess, 150*time.Millisecond)

	counts := GetScanCounts()
	if counts[OutcomeSuccess]-before != 1 {
		t.Errorf("success delta = %d, want 1", counts[OutcomeSuccess]-before)
	}

	// Returned map is a copy
	counts[OutcomeSuccess] = 9999
	if GetScanCounts()[OutcomeSuccess] == 9999 {
		t.Error("cache was modified through returned map")
	}
}

func TestMetricsConcurrentAccess(_ *testing.T) {
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				FrameDelivered()
				FrameDropped(DropOverwrite)
				_ = GetCaptureStats()
				DecodeIgnored()
			}
		}()
	}
	wg.Wait()
}
