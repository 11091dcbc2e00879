package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
	"github.com/alanyoungcy/predictpool/internal/store/memory"
)

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.Called(ctx, channel, payload).Error(0)
}

// eventTypes returns the envelope types published on channel, in order.
func (m *mockPublisher) eventTypes(t *testing.T, channel string) []string {
	t.Helper()
	var out []string
	for _, c := range m.Calls {
		if c.Arguments.String(1) != channel {
			continue
		}
		env, err := events.Decode(c.Arguments.Get(2).([]byte))
		require.NoError(t, err)
		out = append(out, env.Type)
	}
	return out
}

type fakeArchiver struct {
	mu      sync.Mutex
	reports map[string]domain.SettlementReport
}

func (f *fakeArchiver) Archive(_ context.Context, r domain.SettlementReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reports == nil {
		f.reports = map[string]domain.SettlementReport{}
	}
	f.reports[r.Market.ID] = r
	return nil
}

func (f *fakeArchiver) Load(_ context.Context, id string) (domain.SettlementReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reports[id]
	if !ok {
		return domain.SettlementReport{}, domain.ErrNotFound
	}
	return r, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeNotifier) Notify(_ context.Context, _, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	return nil
}

type env struct {
	store       *memory.Store
	pub         *mockPublisher
	archiver    *fakeArchiver
	notifier    *fakeNotifier
	markets     *MarketService
	bets        *BetService
	resolution  *ResolutionService
	leaderboard *LeaderboardService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.New()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	arch := &fakeArchiver{}
	notif := &fakeNotifier{}
	log := quietLogger()
	clock := func() time.Time { return testNow }

	ms := NewMarketService(st.Markets(), st.Bets(), nil, pub, st.Audit(), nil, log)
	ms.now = clock
	bs := NewBetService(st.Ledger(), st.Markets(), st.Bets(), nil, pub, st.Audit(), nil, log)
	bs.now = clock
	rs := NewResolutionService(st.Markets(), st.Bets(), st.Ledger(), ResolutionDeps{
		Archiver: arch,
		Notifier: notif,
		Bus:      pub,
		Audit:    st.Audit(),
	}, SettlementConfig{Workers: 4}, log)
	rs.now = clock

	return &env{
		store:       st,
		pub:         pub,
		archiver:    arch,
		notifier:    notif,
		markets:     ms,
		bets:        bs,
		resolution:  rs,
		leaderboard: NewLeaderboardService(st.Leaderboard()),
	}
}

func (e *env) market(t *testing.T, title string) domain.Market {
	t.Helper()
	m, err := e.markets.CreateMarket(context.Background(), domain.NewMarket{
		Title:          title,
		Category:       domain.CategoryTrend,
		ResolutionDate: testNow.Add(72 * time.Hour),
		CreatedBy:      "tester",
	})
	require.NoError(t, err)
	return m
}

func (e *env) bet(t *testing.T, marketID, userID string, pos domain.Position, stake int64) domain.Bet {
	t.Helper()
	b, err := e.bets.PlaceBet(context.Background(), domain.PlaceBetRequest{
		MarketID:    marketID,
		UserID:      userID,
		Position:    pos,
		StakeAmount: stake,
		Confidence:  70,
	})
	require.NoError(t, err)
	return b
}

func (e *env) payout(t *testing.T, betID string) int64 {
	t.Helper()
	b, err := e.store.Bets().GetByID(context.Background(), betID)
	require.NoError(t, err)
	require.NotNil(t, b.Payout, "bet %s unpaid", betID)
	return *b.Payout
}
