package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/qrgrabber/internal/events"
	"github.com/smazurov/qrgrabber/internal/logging"
)

// LogStreamInput filters the log stream.
type LogStreamInput struct {
	Module string `query:"module" doc:"Only entries from this module, e.g. scan"`
	Level  string `query:"level" doc:"Minimum level: debug, info, warn or error"`
	Tail   int    `query:"tail" default:"200" minimum:"0" maximum:"1000" doc:"Buffered entries replayed before streaming"`
}

// registerLogRoutes registers the log streaming SSE endpoint.
func (s *Server) registerLogRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func() map[string]any {
		return map[string]any{
			"message": events.LogEntryEvent{},
		}
	}(), func(ctx context.Context, input *LogStreamInput, send sse.Sender) {
		query := logging.Query{Module: input.Module, MinLevel: input.Level}

		// subscribe first: entries logged during replay may repeat but are not lost
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if buffer := logging.GetBuffer(); buffer != nil && input.Tail > 0 {
			replay := query
			replay.Limit = input.Tail
			for _, entry := range buffer.Entries(replay) {
				if err := send.Data(logEntryEvent(entry)); err != nil {
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				entry, ok := event.(events.LogEntryEvent)
				if !ok || !query.Matches(logging.LogEntry{Module: entry.Module, Level: entry.Level}) {
					continue
				}
				if err := send.Data(entry); err != nil {
					return
				}
			}
		}
	})
}

func logEntryEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}
