package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/qrgrabber/internal/events"
)

// ConnectedEvent is the first message on every event stream.
type ConnectedEvent struct {
	Message   string `json:"message" example:"SSE connection established"`
	Prepared  bool   `json:"prepared" doc:"Whether a scanner is currently prepared"`
	Scanning  bool   `json:"scanning" doc:"Whether a scan is currently pending"`
	ScanID    string `json:"scan_id,omitempty" doc:"Pending scan identifier"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z"`
}

// registerSSERoutes registers the scan lifecycle event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of device preparation and scan lifecycle events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"connected":       ConnectedEvent{},
		"device-prepared": events.DevicePreparedEvent{},
		"scan-started":    events.ScanStartedEvent{},
		"scan-completed":  events.ScanCompletedEvent{},
		"scan-aborted":    events.ScanAbortedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 16)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.DevicePreparedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ScanStartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ScanCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ScanAbortedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		hello := ConnectedEvent{
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}
		if ctrl := s.options.Controller; ctrl != nil {
			hello.Prepared = ctrl.Prepared()
			hello.Scanning = ctrl.Scanning()
			if hello.Scanning {
				hello.ScanID = ctrl.ScanID()
			}
		}
		if err := send.Data(hello); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
