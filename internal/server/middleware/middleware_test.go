package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/metrics"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLocalLimiter_SlidingWindow(t *testing.T) {
	l := NewLocalLimiter()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "bets:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "bets:1.2.3.4", 3, time.Minute)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "bets:5.6.7.8", 3, time.Minute)
	assert.True(t, ok, "keys are independent")

	now = now.Add(61 * time.Second)
	ok, _ = l.Allow(ctx, "bets:1.2.3.4", 3, time.Minute)
	assert.True(t, ok, "old hits fall out of the window")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, RateLimitConfig{Scope: "bets", Limit: 1, Window: time.Second}, quiet)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markets/m1/bets", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestExtractClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", extractClientIP(r, false))
	assert.Equal(t, "10.0.0.1", extractClientIP(r, true))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.4")
	assert.Equal(t, "10.0.0.1", extractClientIP(r, false), "forwarded headers ignored without a trusted proxy")
	assert.Equal(t, "198.51.100.4", extractClientIP(r, true), "the hop the proxy appended wins")

	r.Header.Set("X-Real-IP", "192.168.1.9")
	assert.Equal(t, "10.0.0.1", extractClientIP(r, false))
	assert.Equal(t, "192.168.1.9", extractClientIP(r, true))
}

func TestRateLimit_SpoofedForwardedFor(t *testing.T) {
	h := RateLimit(NewLocalLimiter(), RateLimitConfig{Scope: "bets", Limit: 1, Window: time.Minute}, quiet)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) }))

	codes := make([]int, 0, 3)
	for _, spoof := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		r := httptest.NewRequest(http.MethodPost, "/api/markets/m1/bets", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		r.Header.Set("X-Forwarded-For", spoof)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestLocalLimiter_DropsIdleKeys(t *testing.T) {
	l := NewLocalLimiter()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, fmt.Sprintf("bets:10.0.%d.1", i), 5, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Len(t, l.hits, 100)

	now = now.Add(2 * time.Minute)
	ok, _ := l.Allow(ctx, "bets:fresh", 5, time.Minute)
	assert.True(t, ok)
	assert.Len(t, l.hits, 1, "idle keys are swept once their window passes")
	assert.Contains(t, l.hits, "bets:fresh")
}

func TestAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Auth("secret")(next)

	cases := []struct {
		method string
		header string
		value  string
		want   int
	}{
		{http.MethodGet, "", "", http.StatusOK},
		{http.MethodPost, "", "", http.StatusUnauthorized},
		{http.MethodPost, "X-API-Key", "secret", http.StatusOK},
		{http.MethodPost, "Authorization", "Bearer secret", http.StatusOK},
		{http.MethodPost, "Authorization", "Basic secret", http.StatusUnauthorized},
		{http.MethodPost, "X-API-Key", "nope", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(tc.method, "/api/markets", nil)
		if tc.header != "" {
			r.Header.Set(tc.header, tc.value)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, tc.want, rec.Code, "%s %s=%q", tc.method, tc.header, tc.value)
	}

	rec := httptest.NewRecorder()
	Auth("")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogging_RecordsStatus(t *testing.T) {
	m := metrics.New()
	h := Logging(quiet, m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markets/m1/bets", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodPost, "4xx")))
}
