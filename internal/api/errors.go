package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/scan"
	"github.com/smazurov/qrgrabber/internal/updater"
)

// mapScanError converts capture and scan errors to Huma HTTP errors.
// Device problems are 503, usage conflicts 409, an aborted scan 410.
func mapScanError(err error) error {
	switch {
	case errors.Is(err, scan.ErrNoScanner):
		return huma.Error503ServiceUnavailable("No barcode scanner available", err)
	case capture.IsNegotiationError(err), capture.IsInitializationError(err):
		return huma.Error503ServiceUnavailable("Capture device unavailable", err)
	case errors.Is(err, scan.ErrScanInProgress),
		errors.Is(err, scan.ErrNotPrepared),
		errors.Is(err, capture.ErrNotPrepared),
		errors.Is(err, capture.ErrAlreadyStarted):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, scan.ErrScanStopped):
		return huma.Error410Gone("Scan stopped before a code was decoded")
	case errors.Is(err, scan.ErrScanTimeout), errors.Is(err, context.DeadlineExceeded):
		return huma.NewError(http.StatusRequestTimeout, "Scan timed out")
	default:
		return huma.Error500InternalServerError("Scan failed", err)
	}
}

// mapUpdateError converts updater errors to Huma HTTP errors.
func mapUpdateError(err error) error {
	var updateErr *updater.Error
	if !errors.As(err, &updateErr) {
		return huma.Error500InternalServerError(err.Error())
	}
	switch updateErr.Code {
	case updater.ErrCodeInvalidState:
		return huma.Error409Conflict(updateErr.Message)
	case updater.ErrCodeNoUpdate:
		return huma.Error400BadRequest(updateErr.Message)
	case updater.ErrCodeNotFound, updater.ErrCodeNoBackup:
		return huma.Error404NotFound(updateErr.Message)
	case updater.ErrCodeDisabled:
		return huma.Error503ServiceUnavailable(updateErr.Message)
	default:
		return huma.Error500InternalServerError(updateErr.Message, updateErr)
	}
}
