package led

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBoardFor(t *testing.T) {
	tests := []struct {
		model         string
		wantOK        bool
		wantIndicator string
	}{
		{model: "FriendlyElec NanoPC-T6", wantOK: true, wantIndicator: "user"},
		{model: "Orange Pi 5 Plus", wantOK: true, wantIndicator: "green"},
		{model: "Raspberry Pi 4 Model B Rev 1.4", wantOK: true, wantIndicator: "act"},
		{model: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			b, ok := boardFor(tt.model)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if b.indicator != tt.wantIndicator {
				t.Errorf("indicator = %q, want %q", b.indicator, tt.wantIndicator)
			}
			if _, has := b.leds[b.indicator]; !has {
				t.Errorf("indicator %q not in LED map %v", b.indicator, b.leds)
			}
		})
	}
}

func TestDetectBoard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	if err := os.WriteFile(path, []byte("Raspberry Pi 5\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := detectBoard(path); got != "Raspberry Pi 5" {
		t.Errorf("detectBoard = %q", got)
	}
	if got := detectBoard(filepath.Join(t.TempDir(), "missing")); got != "unknown" {
		t.Errorf("detectBoard(missing) = %q", got)
	}
}

func TestNew(t *testing.T) {
	ctrl, _ := New(discardLogger())
	if ctrl == nil {
		t.Fatal("New() returned nil")
	}
	if ctrl.Available() == nil || ctrl.Patterns() == nil {
		t.Error("capability lists must be non-nil")
	}
}
