package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/qrgrabber/internal/api/models"
)

func updateOperation(id, method, path, summary, description string, errs ...int) huma.Operation {
	return huma.Operation{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Description: description,
		Tags:        []string{"update"},
		Errors:      append([]int{401}, errs...),
		Security:    withAuth(),
	}
}

var (
	checkUpdateOp = updateOperation("check-updates", http.MethodGet, "/api/update/check",
		"Check for Updates", "Check if a newer release is available without downloading it", 409, 500)
	updateStatusOp = updateOperation("get-update-status", http.MethodGet, "/api/update/status",
		"Get Update Status", "Current update state and backup availability", 500)
	applyUpdateOp = updateOperation("apply-update", http.MethodPost, "/api/update/apply",
		"Apply Update", "Download and install the available release. The service exits afterwards so systemd restarts it.",
		400, 409, 500)
	rollbackUpdateOp = updateOperation("rollback-update", http.MethodPost, "/api/update/rollback",
		"Rollback Update", "Restore the backed up binary. The service exits afterwards so systemd restarts it.",
		404, 409, 500)
)

// registerUpdateRoutes registers the self-update endpoints. When the service
// cannot replace its own binary the same operations answer 503.
func (s *Server) registerUpdateRoutes() {
	svc := s.options.UpdateService
	if svc == nil {
		return
	}

	if !svc.IsEnabled() {
		reason := svc.DisabledReason()
		disabled := func(_ context.Context, _ *struct{}) (*struct{}, error) {
			return nil, huma.Error503ServiceUnavailable("Update service disabled: " + reason)
		}
		for _, op := range []huma.Operation{checkUpdateOp, updateStatusOp, applyUpdateOp, rollbackUpdateOp} {
			op.Errors = []int{401, 503}
			huma.Register(s.api, op, disabled)
		}
		s.logger.Info("Update routes disabled", "reason", reason)
		return
	}

	huma.Register(s.api, checkUpdateOp, func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
		info, err := svc.CheckForUpdate(ctx)
		if err != nil {
			return nil, mapUpdateError(err)
		}
		return &models.UpdateCheckResponse{Body: *info}, nil
	})

	huma.Register(s.api, updateStatusOp, func(_ context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
		return &models.UpdateStatusResponse{Body: svc.GetStatus()}, nil
	})

	huma.Register(s.api, applyUpdateOp, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.ApplyUpdate(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return models.NewMessage("Update applied, restarting..."), nil
	})

	huma.Register(s.api, rollbackUpdateOp, func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := svc.Rollback(ctx); err != nil {
			return nil, mapUpdateError(err)
		}
		return models.NewMessage("Rollback complete, restarting..."), nil
	})
}
