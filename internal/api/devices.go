package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/qrgrabber/internal/api/models"
	"github.com/smazurov/qrgrabber/internal/platform"
)

// GetDevicesData enumerates source groups of the active backend.
func GetDevicesData(ctx context.Context, media platform.MediaService, backend string) (models.DeviceData, error) {
	groups, err := media.FindSourceGroups(ctx)
	if err != nil {
		return models.DeviceData{}, err
	}

	devices := make([]models.DeviceInfo, 0, len(groups))
	for _, group := range groups {
		info := models.DeviceInfo{
			ID:          group.ID,
			DisplayName: group.DisplayName,
			Sources:     make([]models.SourceInfo, 0, len(group.Sources)),
		}
		for _, src := range group.Sources {
			formats := make([]models.FormatInfo, 0, len(src.Formats))
			for _, f := range src.Formats {
				formats = append(formats, models.FormatInfo{Subtype: f.Subtype, Width: f.Width, Height: f.Height})
			}
			info.Sources = append(info.Sources, models.SourceInfo{
				ID:         src.ID,
				Kind:       src.Kind.String(),
				StreamType: src.StreamType.String(),
				Formats:    formats,
			})
		}
		devices = append(devices, info)
	}

	return models.DeviceData{
		Backend: backend,
		Devices: devices,
		Count:   len(devices),
	}, nil
}

func (s *Server) registerDeviceRoutes() {
	if s.options.Media == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List capture devices (source groups) with their sources and frame formats",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*models.DeviceResponse, error) {
		data, err := GetDevicesData(ctx, s.options.Media, s.options.Backend)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to enumerate devices", err)
		}
		return &models.DeviceResponse{Body: data}, nil
	})
}
