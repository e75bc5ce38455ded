package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/qrgrabber/internal/logging"
)

// Reloadable is the subset of settings that is re-applied while running
// when the config file changes. Everything else requires a restart.
type Reloadable struct {
	Logging        logging.Config
	MirrorX        bool
	JPEGQuality    int
	ScanTimeout    time.Duration
	LEDSuccessHold time.Duration
}

type reloadDoc struct {
	Logging map[string]string `toml:"logging"`
	Preview struct {
		MirrorX     *bool `toml:"mirror_x"`
		JPEGQuality *int  `toml:"jpeg_quality"`
	} `toml:"preview"`
	Capture struct {
		ScanTimeout any `toml:"scan_timeout"`
	} `toml:"capture"`
	Features struct {
		LEDSuccessHold any `toml:"led_success_hold"`
	} `toml:"features"`
}

// ReloadLoader returns the loader used on config file changes. Every reload
// starts from base, the settings in effect at startup, and the file only
// overrides keys that are not pinned. Pinned keys (see Pinned) came from a
// CLI flag or the environment and keep their value. A key removed from the
// file keeps its startup value. Unlike LoadLoggingConfig a parse error is
// reported so the watcher keeps the previous settings.
func ReloadLoader(base Reloadable, pinned map[string]bool) func(path string) (Reloadable, error) {
	return func(path string) (Reloadable, error) {
		out := base
		out.Logging.Modules = make(map[string]string, len(base.Logging.Modules))
		for module, level := range base.Logging.Modules {
			out.Logging.Modules[module] = level
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return out, err
		}

		var doc reloadDoc
		if err := toml.Unmarshal(data, &doc); err != nil {
			return out, fmt.Errorf("failed to parse TOML config: %w", err)
		}

		for key, value := range doc.Logging {
			if pinned["logging."+key] {
				continue
			}
			switch key {
			case "level":
				out.Logging.Level = value
			case "format":
				out.Logging.Format = value
			default:
				out.Logging.Modules[key] = value
			}
		}
		if doc.Preview.MirrorX != nil && !pinned["preview.mirror_x"] {
			out.MirrorX = *doc.Preview.MirrorX
		}
		if doc.Preview.JPEGQuality != nil && !pinned["preview.jpeg_quality"] {
			out.JPEGQuality = *doc.Preview.JPEGQuality
		}
		if doc.Capture.ScanTimeout != nil && !pinned["capture.scan_timeout"] {
			if out.ScanTimeout, err = durationValue(doc.Capture.ScanTimeout); err != nil {
				return out, fmt.Errorf("capture.scan_timeout: %w", err)
			}
		}
		if doc.Features.LEDSuccessHold != nil && !pinned["features.led_success_hold"] {
			if out.LEDSuccessHold, err = durationValue(doc.Features.LEDSuccessHold); err != nil {
				return out, fmt.Errorf("features.led_success_hold: %w", err)
			}
		}
		return out, nil
	}
}

// ParseDuration parses a Go duration string. A bare integer means seconds
// and an empty string means zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func durationValue(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		return ParseDuration(v)
	case int64:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", raw)
	}
}
