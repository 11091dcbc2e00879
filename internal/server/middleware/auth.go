package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth returns middleware that validates API requests using either a Bearer
// token in the Authorization header or a static key in the X-API-Key header.
// Reads (GET, HEAD, OPTIONS) are public; every other method needs the key.
// If apiKey is empty, the middleware passes all requests through (disabled).
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || isReadOnly(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if !checkToken(w, r, apiKey) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireKey guards operator routes. Unlike Auth it covers reads too, and an
// empty apiKey refuses every request instead of disabling the check.
func RequireKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				writeJSONError(w, http.StatusForbidden, "operator endpoints are disabled")
				return
			}
			if !checkToken(w, r, apiKey) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkToken writes a 401 and returns false unless the request carries apiKey.
func checkToken(w http.ResponseWriter, r *http.Request, apiKey string) bool {
	token := extractToken(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "missing authentication token")
		return false
	}

	// Constant-time comparison to prevent timing attacks.
	if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
		writeJSONError(w, http.StatusUnauthorized, "invalid authentication token")
		return false
	}
	return true
}

func isReadOnly(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or in the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}

	return ""
}

// writeJSONError sends an error response with a JSON body.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
