package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictpool/internal/crypto"
)

// maxSignedBody bounds the body read for signature verification.
const maxSignedBody = 1 << 20

// ResolverAuth returns middleware that admits only requests signed with the
// resolver secret. The body is buffered for verification and restored for
// the next handler. A nil auth or empty secret rejects every request.
func ResolverAuth(auth *crypto.ResolverAuth, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil || auth.Secret == "" {
				writeJSONError(w, http.StatusForbidden, "resolver endpoints are disabled")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			if len(body) > maxSignedBody {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			err = auth.Verify(r.Method, r.URL.Path, string(body),
				r.Header.Get(crypto.HeaderTimestamp),
				r.Header.Get(crypto.HeaderSignature),
				time.Now(),
			)
			if err != nil {
				logger.WarnContext(r.Context(), "resolver: rejected request",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("error", err.Error()),
				)
				msg := "invalid resolver signature"
				if errors.Is(err, crypto.ErrMissingSignature) {
					msg = "missing resolver signature"
				}
				writeJSONError(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
