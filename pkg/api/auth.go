// Ops server authentication: static bearer token.
//
// Every route except GET /api/health requires one of:
//
//	Authorization: Bearer <api_key>
//	X-API-Key: <api_key>
//	?token=<api_key>   (websocket clients that cannot set headers)
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sipeed/clawcord/pkg/logger"
)

// authMiddleware wraps a handler with bearer token checking.
// NewServer always fills the key, so an empty one only happens when
// key generation failed.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		logger.WarnC("auth", "Ops API auth disabled: no API key available")
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if !tokenValid(extractToken(r), apiKey) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="clawcord"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "unauthorized: bearer token required",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the token from the Authorization header, the
// X-API-Key header, or the token query parameter.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return r.URL.Query().Get("token")
}

// tokenValid compares in constant time.
func tokenValid(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func isPublicPath(path string) bool {
	return path == "/api/health"
}
