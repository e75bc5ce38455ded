package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/qrgrabber/cmd"
	"github.com/smazurov/qrgrabber/internal/api"
	"github.com/smazurov/qrgrabber/internal/config"
	"github.com/smazurov/qrgrabber/internal/events"
	"github.com/smazurov/qrgrabber/internal/led"
	"github.com/smazurov/qrgrabber/internal/logging"
	"github.com/smazurov/qrgrabber/internal/metrics/exporters"
	"github.com/smazurov/qrgrabber/internal/platform"
	"github.com/smazurov/qrgrabber/internal/preview"
	"github.com/smazurov/qrgrabber/internal/scan"
	"github.com/smazurov/qrgrabber/internal/updater"
	"github.com/smazurov/qrgrabber/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port             string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	ServerCorsOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Capture settings
	CaptureBackend     string `help:"Capture backend (v4l2, fake, opencv)" default:"v4l2" toml:"capture.backend" env:"CAPTURE_BACKEND"`
	CaptureDevice      string `help:"Restrict to one video device, e.g. /dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureMaxWidth    int    `help:"Widest acceptable capture format" default:"800" toml:"capture.max_width" env:"CAPTURE_MAX_WIDTH"`
	CaptureScanTimeout string `help:"Scan timeout, e.g. 30s (0 waits forever)" default:"0" toml:"capture.scan_timeout" env:"CAPTURE_SCAN_TIMEOUT"`

	// Preview settings
	PreviewMirrorX     bool `help:"Mirror preview frames horizontally" default:"true" toml:"preview.mirror_x" env:"PREVIEW_MIRROR_X"`
	PreviewJpegQuality int  `help:"Preview JPEG quality (1-100)" default:"80" toml:"preview.jpeg_quality" env:"PREVIEW_JPEG_QUALITY"`

	// Features settings
	FeaturesLedControl     bool   `help:"Enable LED scan indicator" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLedSuccessHold string `help:"How long the LED stays on after a decode" default:"3s" toml:"features.led_success_hold" env:"FEATURES_LED_SUCCESS_HOLD"`

	// Update settings
	UpdateRepository string `help:"GitHub repository for self-update" default:"smazurov/qrgrabber" toml:"update.repository" env:"UPDATE_REPOSITORY"`
	UpdatePrerelease bool   `help:"Consider prereleases" default:"false" toml:"update.prerelease" env:"UPDATE_PRERELEASE"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture  string `help:"Capture logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingScan     string `help:"Scan logging level" default:"info" toml:"logging.scan" env:"LOGGING_SCAN"`
	LoggingPlatform string `help:"Platform backend logging level" default:"info" toml:"logging.platform" env:"LOGGING_PLATFORM"`
	LoggingDecode   string `help:"Decoder logging level" default:"info" toml:"logging.decode" env:"LOGGING_DECODE"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP     string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingPreview  string `help:"Preview logging level" default:"info" toml:"logging.preview" env:"LOGGING_PREVIEW"`
	LoggingLed      string `help:"LED logging level" default:"info" toml:"logging.led" env:"LOGGING_LED"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"capture":  o.LoggingCapture,
			"scan":     o.LoggingScan,
			"platform": o.LoggingPlatform,
			"decode":   o.LoggingDecode,
			"api":      o.LoggingAPI,
			"http":     o.LoggingHTTP,
			"preview":  o.LoggingPreview,
			"led":      o.LoggingLed,
		},
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		scanTimeout, err := config.ParseDuration(opts.CaptureScanTimeout)
		if err != nil {
			logger.Warn("Invalid scan timeout, scans wait forever", "value", opts.CaptureScanTimeout, "error", err)
		}
		ledHold, err := config.ParseDuration(opts.FeaturesLedSuccessHold)
		if err != nil {
			logger.Warn("Invalid LED success hold, using default", "value", opts.FeaturesLedSuccessHold, "error", err)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		backend, err := platform.Open(opts.CaptureBackend, platform.Config{
			Device: opts.CaptureDevice,
			Logger: logging.GetLogger("platform"),
		})
		if err != nil {
			logger.Error("Failed to open capture backend", "backend", opts.CaptureBackend, "error", err)
			os.Exit(1)
		}
		logger.Info("Capture backend ready", "backend", backend.Name(), "device", opts.CaptureDevice)

		controller := scan.NewController(scan.Options{
			Media:       backend,
			Scanners:    backend,
			Events:      eventBus,
			MaxWidth:    opts.CaptureMaxWidth,
			ScanTimeout: scanTimeout,
			Logger:      logging.GetLogger("scan"),
		})

		latest := preview.NewLatest(preview.Options{
			MirrorX:     opts.PreviewMirrorX,
			JPEGQuality: opts.PreviewJpegQuality,
		})
		fanout := preview.NewFanout()

		// Initialize LED indicator if enabled
		var ledManager *led.Manager
		var ledController led.Controller
		var ledIndicator string
		if opts.FeaturesLedControl {
			ledLogger := logging.GetLogger("led")
			ledLogger.Info("LED control enabled, initializing")
			ledController, ledIndicator = led.New(ledLogger)
			ledManager = led.NewManager(ledController, ledIndicator, eventBus, ledLogger)
			ledManager.SetSuccessHold(ledHold)
		}

		var updateService *updater.Service
		if opts.UpdateRepository != "" {
			updateService, err = updater.NewService(updater.Options{
				Repository: opts.UpdateRepository,
				Prerelease: opts.UpdatePrerelease,
				OnApplied:  exitForRestart(logger),
			}, logging.GetLogger("updater"))
			if err != nil {
				logger.Warn("Update service unavailable", "error", err)
			}
		}

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			CORSOrigin:        opts.ServerCorsOrigin,
			Controller:        controller,
			Media:             backend,
			Backend:           backend.Name(),
			EventBus:          eventBus,
			Preview:           latest,
			Fanout:            fanout,
			PrometheusHandler: exporters.HTTPHandler(),
			LEDController:     ledController,
			LEDIndicator:      ledIndicator,
			UpdateService:     updateService,
		})

		startup := config.Reloadable{
			Logging:        opts.loggingConfig(),
			MirrorX:        opts.PreviewMirrorX,
			JPEGQuality:    opts.PreviewJpegQuality,
			ScanTimeout:    scanTimeout,
			LEDSuccessHold: ledHold,
		}
		loader := config.ReloadLoader(startup, config.Pinned(opts, cli.Root()))
		watcher := config.NewConfigWatcher(opts.Config, loader, logging.GetLogger("config"),
			config.WithErrorHandler[config.Reloadable](func(err error) {
				logger.Warn("Config reload failed, keeping previous settings", "error", err)
			}))
		watcher.OnReload(func(r config.Reloadable) {
			logging.ApplyLevels(r.Logging)
			controller.SetScanTimeout(r.ScanTimeout)
			latest.SetOptions(preview.Options{MirrorX: r.MirrorX, JPEGQuality: r.JPEGQuality})
			if ledManager != nil {
				ledManager.SetSuccessHold(r.LEDSuccessHold)
			}
			logger.Info("Config reloaded",
				"scan_timeout", r.ScanTimeout,
				"mirror_x", r.MirrorX,
				"jpeg_quality", r.JPEGQuality)
		})

		hooks.OnStart(func() {
			if ledManager != nil {
				ledManager.Start()
			}
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Config hot reload unavailable", "path", opts.Config, "error", startErr)
			}

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("systemd notify failed", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			// closing connections releases a blocked scan request; the
			// controller teardown below covers a scan still in flight
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := controller.Close(); stopErr != nil {
				logger.Warn("Error releasing scanner", "error", stopErr)
			}
			if closeErr := backend.Close(); closeErr != nil {
				logger.Warn("Error closing capture backend", "error", closeErr)
			}

			_ = watcher.Stop()
			if ledManager != nil {
				ledManager.Stop()
			}
		})
	})

	cli.Root().Use = "qrgrabber"
	cli.Root().Version = version.String()
	cli.Root().AddCommand(cmd.CreateScanCmd())
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateUpdateCmd())

	// Run the CLI
	cli.Run()
}

// exitForRestart ends the process shortly after a binary swap so the HTTP
// response is sent and systemd starts the new version.
func exitForRestart(logger *slog.Logger) func() {
	return func() {
		logger.Info("Exiting for restart")
		time.AfterFunc(time.Second, func() {
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			os.Exit(0)
		})
	}
}
