package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/crypto"
	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
	"github.com/alanyoungcy/predictpool/internal/metrics"
	"github.com/alanyoungcy/predictpool/internal/server/handler"
	"github.com/alanyoungcy/predictpool/internal/server/middleware"
	"github.com/alanyoungcy/predictpool/internal/service"
	"github.com/alanyoungcy/predictpool/internal/store/memory"
)

const (
	testAPIKey = "test-api-key"
	testSecret = "resolver-secret"
)

func newTestHandler(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	bus := events.NewMemoryBus()
	m := metrics.New()

	markets := service.NewMarketService(st.Markets(), st.Bets(), nil, bus, st.Audit(), m, log)
	bets := service.NewBetService(st.Ledger(), st.Markets(), st.Bets(), nil, bus, st.Audit(), m, log)
	resolution := service.NewResolutionService(st.Markets(), st.Bets(), st.Ledger(), service.ResolutionDeps{
		Bus:     bus,
		Audit:   st.Audit(),
		Metrics: m,
	}, service.SettlementConfig{}, log)

	return NewHandler(cfg, Handlers{
		Health:      handler.NewHealthHandler(nil, log),
		Markets:     handler.NewMarketHandler(markets, log),
		Bets:        handler.NewBetHandler(bets, log),
		Resolution:  handler.NewResolutionHandler(resolution, log),
		Leaderboard: handler.NewLeaderboardHandler(service.NewLeaderboardService(st.Leaderboard()), log),
		Audit:       handler.NewAuditHandler(st.Audit(), log),
	}, Deps{
		Limiter: middleware.NewLocalLimiter(),
		Metrics: m,
	}, log)
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func withKey(extra map[string]string) map[string]string {
	h := map[string]string{"X-API-Key": testAPIKey}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func signed(method, path, body string) map[string]string {
	auth := &crypto.ResolverAuth{Secret: testSecret}
	return withKey(auth.Headers(method, path, body))
}

func createMarket(t *testing.T, h http.Handler, title string) string {
	t.Helper()
	body := `{"title":"` + title + `","category":"trend","resolution_date":"2027-01-01T00:00:00Z","created_by":"admin"}`
	rec := do(h, http.MethodPost, "/api/markets", body, withKey(nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var m domain.MarketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m.ID
}

func placeBet(h http.Handler, marketID, userID, position string, stake int) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]any{"user_id": userID, "position": position, "stake_amount": stake})
	return do(h, http.MethodPost, "/api/markets/"+marketID+"/bets", string(body), withKey(nil))
}

func TestServer_MarketLifecycle(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: testAPIKey, ResolverSecret: testSecret})
	id := createMarket(t, h, "Rust overtakes Go")

	require.Equal(t, http.StatusCreated, placeBet(h, id, "y1", "yes", 100).Code)
	require.Equal(t, http.StatusCreated, placeBet(h, id, "y2", "yes", 200).Code)
	require.Equal(t, http.StatusCreated, placeBet(h, id, "n1", "no", 100).Code)
	assert.Equal(t, http.StatusConflict, placeBet(h, id, "y1", "no", 5).Code)

	rec := do(h, http.MethodGet, "/api/markets/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view domain.MarketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(300), view.TotalYesStake)
	assert.Equal(t, 75, view.YesPercent)

	path := "/api/markets/" + id + "/resolve"
	body := `{"outcome":"yes"}`
	rec = do(h, http.MethodPost, path, body, signed(http.MethodPost, path, body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary domain.SettlementSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, int64(400), summary.TotalPool)
	assert.Equal(t, int64(399), summary.PaidOut)
	assert.Equal(t, int64(1), summary.Unclaimed)

	rec = do(h, http.MethodPost, path, body, signed(http.MethodPost, path, body))
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusConflict, placeBet(h, id, "late", "yes", 10).Code)

	rec = do(h, http.MethodGet, "/api/settlements/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report domain.SettlementReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Settlements, 3)

	rec = do(h, http.MethodGet, "/api/leaderboard/y2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entry domain.LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, int64(66), entry.TotalProfit)
	assert.Equal(t, 100, entry.Accuracy)

	rec = do(h, http.MethodGet, "/api/users/n1/bets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"payout":0`)

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `predictpool_bets_placed_total{position="yes"} 2`)
	assert.Contains(t, rec.Body.String(), `predictpool_unclaimed_pool_total 1`)
}

func TestServer_AuthOnWrites(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: testAPIKey, ResolverSecret: testSecret})

	rec := do(h, http.MethodPost, "/api/markets", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodPost, "/api/markets", `{}`, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/api/markets", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ResolverSignature(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: testAPIKey, ResolverSecret: testSecret})
	id := createMarket(t, h, "Signed resolution")
	path := "/api/markets/" + id + "/resolve"
	body := `{"outcome":"no"}`

	rec := do(h, http.MethodPost, path, body, withKey(nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing resolver signature")

	forged := (&crypto.ResolverAuth{Secret: "other"}).Headers(http.MethodPost, path, body)
	rec = do(h, http.MethodPost, path, body, withKey(forged))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A signature over a different body does not carry over.
	rec = do(h, http.MethodPost, path, `{"outcome":"yes"}`, signed(http.MethodPost, path, body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stale := (&crypto.ResolverAuth{Secret: testSecret}).HeadersAt(http.MethodPost, path, body, time.Now().Add(-time.Hour).Unix())
	rec = do(h, http.MethodPost, path, body, withKey(stale))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h, http.MethodGet, "/api/markets/"+id, "", nil)
	assert.Contains(t, rec.Body.String(), `"status":"open"`)

	t.Run("NoSecretConfigured", func(t *testing.T) {
		h := newTestHandler(t, Config{APIKey: testAPIKey})
		id := createMarket(t, h, "Unsigned")
		path := "/api/markets/" + id + "/resume"
		rec := do(h, http.MethodPost, path, "", signed(http.MethodPost, path, ""))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestServer_BetRateLimit(t *testing.T) {
	h := newTestHandler(t, Config{RateLimit: 2, RateWindow: time.Minute})
	id := createMarket(t, h, "Rate limited")

	assert.Equal(t, http.StatusCreated, placeBet(h, id, "u1", "yes", 1).Code)
	assert.Equal(t, http.StatusCreated, placeBet(h, id, "u2", "yes", 1).Code)

	rec := placeBet(h, id, "u3", "yes", 1)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other routes keep their own budget.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/markets/"+id, "", nil).Code)
}

func TestServer_CORSPreflight(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: testAPIKey, CORSOrigins: []string{"https://app.example.com"}})

	rec := do(h, http.MethodOptions, "/api/markets", "", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)

	rec = do(h, http.MethodGet, "/api/markets", "", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_AuditRequiresKey(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: testAPIKey})
	id := createMarket(t, h, "Audited market")
	require.Equal(t, http.StatusCreated, placeBet(h, id, "u1", "yes", 10).Code)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/audit", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(h, http.MethodGet, "/api/audit", "", map[string]string{"X-API-Key": "wrong"}).Code)

	rec := do(h, http.MethodGet, "/api/audit?limit=1", "", withKey(nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Entries []domain.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.NotEmpty(t, body.Entries[0].Event)

	t.Run("NoKeyConfigured", func(t *testing.T) {
		h := newTestHandler(t, Config{})
		assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/api/audit", "", nil).Code)
	})
}

func TestServer_BetLookupAndPaging(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: testAPIKey})

	var last domain.Bet
	for i := 0; i < 3; i++ {
		id := createMarket(t, h, fmt.Sprintf("Paged %d", i))
		rec := placeBet(h, id, "pager", "no", 5)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &last))
	}

	rec := do(h, http.MethodGet, "/api/bets/"+last.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Bet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "pager", got.UserID)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/bets/missing", "", nil).Code)

	rec = do(h, http.MethodGet, "/api/users/pager/bets?limit=2&offset=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Bets []domain.UserBet `json:"bets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Bets, 1)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/users/pager/bets?since=later", "", nil).Code)
}

func TestServer_StakeThatOverflowsThePool(t *testing.T) {
	h := newTestHandler(t, Config{APIKey: testAPIKey})
	id := createMarket(t, h, "Whales only")
	half := math.MaxInt64/2 + 1

	require.Equal(t, http.StatusCreated, placeBet(h, id, "w1", "yes", half).Code)
	rec := placeBet(h, id, "w2", "no", half)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"invalid_stake"`)

	rec = do(h, http.MethodGet, "/api/markets/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view domain.MarketView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(half), view.TotalYesStake)
	assert.Zero(t, view.TotalNoStake)
	assert.Equal(t, 100, view.YesPercent)
}
