package api

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gorilla/websocket"
	"github.com/smazurov/qrgrabber/internal/api/models"
	"github.com/smazurov/qrgrabber/internal/capture"
	"github.com/smazurov/qrgrabber/internal/imaging"
	"github.com/smazurov/qrgrabber/internal/preview"
)

const (
	// writeWait is how long to wait for a frame write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// clients only send control frames
	maxMessageSize = 512

	// frameHeaderSize is the big-endian width and height before the pixels
	frameHeaderSize = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// same policy as the permissive CORS config
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) registerPreviewRoutes() {
	if s.options.Preview != nil {
		latest := s.options.Preview
		huma.Register(s.api, huma.Operation{
			OperationID: "get-preview",
			Method:      http.MethodGet,
			Path:        "/api/preview.jpg",
			Summary:     "Preview Snapshot",
			Description: "JPEG of the most recent frame of the current or last scan",
			Tags:        []string{"preview"},
			Security:    withAuth(),
			Errors:      []int{401, 404, 500},
			Responses: map[string]*huma.Response{
				"200": {
					Description: "JPEG image",
					Content:     map[string]*huma.MediaType{"image/jpeg": {}},
				},
			},
		}, func(_ context.Context, _ *struct{}) (*models.PreviewResponse, error) {
			data, err := latest.JPEG()
			if errors.Is(err, preview.ErrNoFrame) {
				return nil, huma.Error404NotFound("No frame captured yet")
			}
			if err != nil {
				return nil, huma.Error500InternalServerError("Failed to encode preview", err)
			}
			return &models.PreviewResponse{
				ContentType:  "image/jpeg",
				CacheControl: "no-store",
				Body:         data,
			}, nil
		})
	}

	if s.options.Fanout != nil {
		s.mux.HandleFunc("GET /api/preview/ws", s.requireAuth(s.handlePreviewWS))
	}
}

// handlePreviewWS pushes every scanned frame to the client as one binary
// message: uint32 width, uint32 height, then RGBA8 rows.
func (s *Server) handlePreviewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		s.logger.Debug("Preview websocket upgrade failed", "error", err)
		return
	}

	frames, unsubscribe := s.options.Fanout.Subscribe()
	s.logger.Debug("Preview client connected", "remote_addr", r.RemoteAddr)

	mirror := false
	if s.options.Preview != nil {
		mirror = s.options.Preview.Options().MirrorX
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		readPump(conn)
	}()
	writePump(conn, frames, done, mirror)

	unsubscribe()
	_ = conn.Close()
	<-done
	s.logger.Debug("Preview client disconnected", "remote_addr", r.RemoteAddr)
}

// readPump discards client messages. It returns when the connection closes
// or no pong arrived within pongWait.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on conn.
func writePump(conn *websocket.Conn, frames <-chan capture.PixelBuffer, done <-chan struct{}, mirror bool) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case buf := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(buf, mirror)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeFrame(buf capture.PixelBuffer, mirror bool) []byte {
	msg := make([]byte, frameHeaderSize+len(buf.Pix))
	binary.BigEndian.PutUint32(msg[0:4], uint32(buf.Width))
	binary.BigEndian.PutUint32(msg[4:8], uint32(buf.Height))
	copy(msg[frameHeaderSize:], buf.Pix)
	if mirror {
		imaging.Mirror(msg[frameHeaderSize:], buf.Width, buf.Height)
	}
	return msg
}
