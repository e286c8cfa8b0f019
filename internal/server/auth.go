package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/cinerag-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a Bearer token for clients
// that cannot set Authorization.
const apiKeyHeader = "X-API-Key"

// authMiddleware requires the configured API key on every request. An empty
// apiKey disables the check; New logs that once at startup.
//
// The key may be sent as "Authorization: Bearer <key>" or in X-API-Key.
// Failures get 401 with a Bearer challenge and a JSON error body. The
// presented value is never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token, scheme := credential(r)
		switch {
		case token == "":
			log.Warn("auth: no credentials", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="cinerag"`)
			writeError(w, log, http.StatusUnauthorized, "authorization required")
		case subtle.ConstantTimeCompare([]byte(token), want) != 1:
			log.Warn("auth: rejected credentials",
				slog.String("path", r.URL.Path),
				slog.String("scheme", scheme),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="cinerag", error="invalid_token"`)
			writeError(w, log, http.StatusUnauthorized, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// credential returns the presented key and where it came from. The Bearer
// header wins when both are set.
func credential(r *http.Request) (token, scheme string) {
	if t := bearerToken(r); t != "" {
		return t, "bearer"
	}
	if t := strings.TrimSpace(r.Header.Get(apiKeyHeader)); t != "" {
		return t, "api_key"
	}
	return "", ""
}

// bearerToken extracts <token> from "Authorization: Bearer <token>". The
// scheme is case-insensitive; anything else yields "".
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
