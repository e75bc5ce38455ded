package api

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

const authRealm = `Basic realm="qrgrabber API"`

var (
	errAuthRequired      = errors.New("authentication required")
	errInvalidAuthType   = errors.New("invalid authentication type")
	errInvalidAuthFormat = errors.New("invalid credentials format")
	errInvalidAuth       = errors.New("invalid credentials")
)

// checkCredentials validates an Authorization header or, for SSE and
// websocket clients that cannot set headers, a base64 "auth" query value.
func checkCredentials(header, query, username, password string) error {
	var encoded string
	switch {
	case header != "":
		const prefix = "Basic "
		if !strings.HasPrefix(header, prefix) {
			return errInvalidAuthType
		}
		encoded = header[len(prefix):]
	case query != "":
		encoded = query
	default:
		return errAuthRequired
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errInvalidAuthFormat
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return errInvalidAuthFormat
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
	if !userOK || !passOK {
		return errInvalidAuth
	}
	return nil
}

// basicAuthMiddleware enforces basic auth on operations that declare security.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		if err := checkCredentials(ctx.Header("Authorization"), ctx.Query("auth"), username, password); err != nil {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, capitalize(err.Error()))
			return
		}
		next(ctx)
	}
}

// requireAuth wraps plain handlers registered outside huma.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	username, password := s.options.AuthUsername, s.options.AuthPassword
	if username == "" || password == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := checkCredentials(r.Header.Get("Authorization"), r.URL.Query().Get("auth"), username, password); err != nil {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, capitalize(err.Error()), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
