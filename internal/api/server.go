package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/qrgrabber/internal/api/models"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/events"
	"github.com/smazurov/qrgrabber/internal/led"
	"github.com/smazurov/qrgrabber/internal/logging"
	"github.com/smazurov/qrgrabber/internal/platform"
	"github.com/smazurov/qrgrabber/internal/preview"
	"github.com/smazurov/qrgrabber/internal/scan"
	"github.com/smazurov/qrgrabber/internal/updater"
	"github.com/smazurov/qrgrabber/internal/version"
)

// ScanController is the part of *scan.Controller the API drives.
type ScanController interface {
	PrepareDevice(ctx context.Context) (capture.Resolution, error)
	StartScan(ctx context.Context, sink capture.Sink) (scan.Result, error)
	StopScan(ctx context.Context) error
	Prepared() bool
	Scanning() bool
	ScanID() string
}

// Options wires the server to the running application.
type Options struct {
	AuthUsername string
	AuthPassword string
	CORSOrigin   string // defaults to "*"

	Controller ScanController
	Media      platform.MediaService
	Backend    string
	EventBus   *events.Bus

	// Preview receives every scanned frame for JPEG snapshots. Fanout pushes
	// the same frames to websocket subscribers. Both are optional.
	Preview *preview.Latest
	Fanout  *preview.Fanout

	PrometheusHandler http.Handler
	LEDController     led.Controller
	LEDIndicator      string // LED driven by scan events, empty when none
	UpdateService     *updater.Service
}

// Server is the Huma v2 HTTP API.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if opts.CORSOrigin != "" {
		corsConfig.AllowOrigin = opts.CORSOrigin
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("qrgrabber API", version.Version)
	config.Info.Description = "Webcam capture and one-shot QR code scanning"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	eventBus := opts.EventBus
	if eventBus == nil {
		eventBus = events.New()
	}

	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: eventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Prometheus scrapes without auth
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting qrgrabber API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and all connections, including blocked scans.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		data := models.HealthData{Status: "ok", Message: "API is healthy"}
		if s.options.Controller != nil {
			data.Prepared = s.options.Controller.Prepared()
			data.Scanning = s.options.Controller.Scanning()
		}
		return &models.HealthResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	s.registerDeviceRoutes()
	s.registerScanRoutes()
	s.registerPreviewRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerLEDRoutes()
	s.registerUpdateRoutes()
}

// withAuth returns security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
