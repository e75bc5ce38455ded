package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/qrgrabber/internal/led"
)

// LEDRequest sets an LED directly. The scan indicator overrides it on the
// next scan event.
type LEDRequest struct {
	Body struct {
		Type    string  `json:"type" example:"user" doc:"LED name (board-specific: user, act, green, etc.)"`
		Enabled bool    `json:"enabled" example:"true" doc:"Whether the LED should be on or off"`
		Pattern *string `json:"pattern,omitempty" enum:"solid,blink,heartbeat" example:"solid" doc:"Optional LED pattern"`
	}
}

// LEDCapabilities lists what the board offers.
type LEDCapabilities struct {
	AvailableTypes    []string `json:"available_types" doc:"LED names found on this board"`
	AvailablePatterns []string `json:"available_patterns" doc:"Supported LED patterns"`
	Indicator         string   `json:"indicator,omitempty" example:"user" doc:"LED driven by scan events"`
}

// LEDCapabilitiesResponse wraps LEDCapabilities.
type LEDCapabilitiesResponse struct {
	Body LEDCapabilities
}

// registerLEDRoutes registers LED control endpoints.
func (s *Server) registerLEDRoutes() {
	ctrl := s.options.LEDController
	if ctrl == nil {
		s.logger.Debug("LED controller not available, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "control-led",
		Method:      http.MethodPost,
		Path:        "/api/leds",
		Summary:     "Control LED",
		Description: "Set an LED's state and optional pattern. LED names are board-specific.",
		Tags:        []string{"leds"},
		Errors:      []int{401, 404, 422, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *LEDRequest) (*struct{}, error) {
		pattern := ""
		if input.Body.Pattern != nil {
			pattern = *input.Body.Pattern
		}
		if err := ctrl.Set(input.Body.Type, input.Body.Enabled, pattern); err != nil {
			if errors.Is(err, led.ErrUnknownLED) {
				return nil, huma.Error404NotFound("Unknown LED", err)
			}
			return nil, huma.Error500InternalServerError("Failed to control LED", err)
		}
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/leds/capabilities",
		Summary:     "Get LED Capabilities",
		Description: "List the LEDs and patterns available on this board",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*LEDCapabilitiesResponse, error) {
		return &LEDCapabilitiesResponse{Body: LEDCapabilities{
			AvailableTypes:    ctrl.Available(),
			AvailablePatterns: ctrl.Patterns(),
			Indicator:         s.options.LEDIndicator,
		}}, nil
	})

	s.logger.Info("LED routes registered")
}
