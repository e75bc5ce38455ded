package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/smazurov/qrgrabber/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// quietPaths are polled by clients several times a second.
var quietPaths = map[string]bool{
	"/api/preview.jpg": true,
	"/api/health":      true,
}

// HTTPLoggingMiddleware tags each request with an id, echoed in the
// X-Request-ID response header, and logs it once it completes.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()

	requestID := ctx.Header(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx.SetHeader(requestIDHeader, requestID)

	next(ctx)

	method := ctx.Method()
	url := ctx.URL()
	status := ctx.Status()

	attrs := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("path", url.Path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if url.RawQuery != "" {
		attrs = append(attrs, slog.String("query", url.RawQuery))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	logging.GetLogger("http").LogAttrs(ctx.Context(), requestLevel(method, url.Path, status), "HTTP request completed", attrs...)
}

// requestLevel picks the log level for a completed request. Preflights and
// successful polling stay at debug.
func requestLevel(method, path string, status int) slog.Level {
	switch {
	case method == http.MethodOptions, status < 400 && quietPaths[path]:
		return slog.LevelDebug
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
