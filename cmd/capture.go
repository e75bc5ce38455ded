package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/smazurov/qrgrabber/internal/config"
	"github.com/smazurov/qrgrabber/internal/logging"
	"github.com/smazurov/qrgrabber/internal/platform"
	"github.com/spf13/cobra"
)

// captureOptions are the config keys shared by commands that open a camera.
// Flag names follow the field names, so config.LoadConfig can tell which
// values were set on the command line.
type captureOptions struct {
	Config        string
	Backend       string        `toml:"capture.backend" env:"CAPTURE_BACKEND"`
	Device        string        `toml:"capture.device" env:"CAPTURE_DEVICE"`
	MaxWidth      int           `toml:"capture.max_width" env:"CAPTURE_MAX_WIDTH"`
	ScanTimeout   time.Duration `toml:"capture.scan_timeout" env:"CAPTURE_SCAN_TIMEOUT"`
	LoggingLevel  string        `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string        `toml:"logging.format" env:"LOGGING_FORMAT"`
}

func (o *captureOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&o.Config, "config", "c", "config.toml", "Path to configuration file")
	flags.StringVar(&o.Backend, "backend", "v4l2", fmt.Sprintf("Capture backend %v", platform.Backends()))
	flags.StringVar(&o.Device, "device", "", "Restrict to one video device, e.g. /dev/video0")
	flags.IntVar(&o.MaxWidth, "max-width", 800, "Widest acceptable capture format")
	flags.DurationVar(&o.ScanTimeout, "scan-timeout", 0, "Give up after this long (0 waits forever)")
	// commands print results; keep logging quiet unless asked
	flags.StringVar(&o.LoggingLevel, "logging-level", "warn", "Logging level (debug, info, warn, error)")
	flags.StringVar(&o.LoggingFormat, "logging-format", "text", "Logging format (text, json)")
}

// load applies the config file and environment, then initializes logging
// on stderr so stdout carries only command output.
func (o *captureOptions) load(cmd *cobra.Command) error {
	if err := config.LoadConfig(o, cmd); err != nil {
		return err
	}
	logging.Initialize(logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Output: os.Stderr,
	})
	return nil
}

func (o *captureOptions) openBackend() (platform.Backend, error) {
	backend, err := platform.Open(o.Backend, platform.Config{
		Device: o.Device,
		Logger: logging.GetLogger("platform"),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", o.Backend, err)
	}
	return backend, nil
}
