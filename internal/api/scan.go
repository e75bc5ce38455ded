package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/qrgrabber/internal/api/models"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/preview"
)

func (s *Server) registerScanRoutes() {
	ctrl := s.options.Controller
	if ctrl == nil {
		s.logger.Debug("No scan controller, skipping scan routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "prepare-scanner",
		Method:      http.MethodPost,
		Path:        "/api/scanner/prepare",
		Summary:     "Prepare Scanner",
		Description: "Claim the default barcode scanner and negotiate a capture format on its camera",
		Tags:        []string{"scan"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.PrepareResponse, error) {
		res, err := ctrl.PrepareDevice(ctx)
		if err != nil {
			return nil, mapScanError(err)
		}
		return &models.PrepareResponse{Body: models.PrepareData{Width: res.Width, Height: res.Height}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "scan",
		Method:      http.MethodPost,
		Path:        "/api/scan",
		Summary:     "Scan",
		Description: "Start capturing and block until one code is decoded, the scan is stopped, or the request is cancelled",
		Tags:        []string{"scan"},
		Security:    withAuth(),
		Errors:      []int{401, 408, 409, 410, 500, 503},
	}, func(ctx context.Context, input *models.ScanRequest) (*models.ScanResponse, error) {
		if input.Prepare && !ctrl.Scanning() {
			if _, err := ctrl.PrepareDevice(ctx); err != nil {
				return nil, mapScanError(err)
			}
		}
		if s.options.Preview != nil {
			s.options.Preview.Reset()
		}

		res, err := ctrl.StartScan(ctx, s.scanSink())
		if err != nil {
			return nil, mapScanError(err)
		}
		return &models.ScanResponse{Body: res}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-scan",
		Method:      http.MethodPost,
		Path:        "/api/scan/stop",
		Summary:     "Stop Scan",
		Description: "Release a pending scan without a result and tear down the capture session",
		Tags:        []string{"scan"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.StopResponse, error) {
		scanID := ctrl.ScanID()
		wasScanning := ctrl.Scanning()
		if err := ctrl.StopScan(ctx); err != nil {
			return nil, huma.Error500InternalServerError("Failed to stop scan", err)
		}
		data := models.StopData{Stopped: wasScanning}
		if wasScanning {
			data.ScanID = scanID
		}
		return &models.StopResponse{Body: data}, nil
	})
}

// scanSink feeds scanned frames to the preview consumers.
func (s *Server) scanSink() capture.Sink {
	var sinks []capture.Sink
	if s.options.Preview != nil {
		sinks = append(sinks, s.options.Preview.Sink)
	}
	if s.options.Fanout != nil {
		sinks = append(sinks, s.options.Fanout.Sink)
	}
	return preview.Tee(sinks...)
}
