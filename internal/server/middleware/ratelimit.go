package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// RateLimitConfig scopes one RateLimit middleware.
type RateLimitConfig struct {
	Scope  string // key prefix, so separate routes keep separate budgets
	Limit  int    // requests per client per Window; 0 disables
	Window time.Duration
	// TrustProxy reads the client address from X-Real-IP / X-Forwarded-For.
	// Without it those headers are ignored and the peer address is used.
	TrustProxy bool
}

// RateLimit returns middleware that applies per-client rate limiting using the
// provided domain.RateLimiter. Each client IP is limited to cfg.Limit requests
// per cfg.Window within cfg.Scope.
func RateLimit(limiter domain.RateLimiter, cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || cfg.Limit <= 0 {
			return next
		}
		retryAfter := strconv.Itoa(max(1, int(cfg.Window/time.Second)))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.Scope + ":" + extractClientIP(r, cfg.TrustProxy)

			allowed, err := limiter.Allow(r.Context(), key, cfg.Limit, cfg.Window)
			if err != nil {
				// Fail open so a limiter outage does not block bets.
				logger.WarnContext(r.Context(), "ratelimit: limiter error",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractClientIP returns the peer address of r. Behind a trusted proxy it
// prefers X-Real-IP, then the last X-Forwarded-For hop, which is the one the
// proxy appended; earlier hops are client supplied.
func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocalLimiter is a single-process sliding-window limiter used when Redis is
// not configured. Keys whose hits have all aged out are dropped.
type LocalLimiter struct {
	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalLimiter creates an empty LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

// Allow records a hit for key and reports whether it fits within limit hits
// over the trailing window. Rejected hits are not recorded.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	if now.Sub(l.lastSweep) >= window {
		l.sweep(cutoff)
		l.lastSweep = now
	}

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		if len(kept) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = kept
		}
		return false, nil
	}
	l.hits[key] = append(kept, now)
	return true, nil
}

// sweep drops every key whose newest hit is at or before cutoff. Hits are
// appended in time order, so the last one is the newest.
func (l *LocalLimiter) sweep(cutoff time.Time) {
	for key, ts := range l.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.hits, key)
		}
	}
}
