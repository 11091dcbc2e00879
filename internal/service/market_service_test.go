package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
)

type mockCache struct{ mock.Mock }

func (m *mockCache) Set(ctx context.Context, market domain.Market) error {
	return m.Called(ctx, market).Error(0)
}

func (m *mockCache) Get(ctx context.Context, id string) (domain.Market, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Market), args.Error(1)
}

func (m *mockCache) Invalidate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"React will reach 250k GitHub stars!": "react-will-reach-250k-github-stars",
		"  --Already--slugged--  ":            "already-slugged",
		"Déjà vu":                             "d-j-vu",
		"???":                                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestMarketService_CreateMarket(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	m := e.market(t, "Go 2 ships generics v2")
	assert.Equal(t, "go-2-ships-generics-v2", m.Slug)
	assert.Equal(t, domain.MarketStatusOpen, m.Status)
	assert.Zero(t, m.TotalPool())
	assert.Equal(t, testNow, m.CreatedAt)
	assert.Equal(t, []string{events.TypeMarketCreated}, e.pub.eventTypes(t, events.ChannelMarkets))

	t.Run("TakenSlug", func(t *testing.T) {
		_, err := e.markets.CreateMarket(ctx, domain.NewMarket{
			Title:    "Go 2 ships generics v2",
			Category: domain.CategoryTrend,
		})
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("PastResolutionDateAccepted", func(t *testing.T) {
		_, err := e.markets.CreateMarket(ctx, domain.NewMarket{
			Title:          "Already happened",
			Category:       domain.CategoryCustom,
			ResolutionDate: testNow.Add(-time.Hour),
		})
		assert.NoError(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := e.markets.CreateMarket(ctx, domain.NewMarket{Title: "x", Category: "sports"})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		_, err = e.markets.CreateMarket(ctx, domain.NewMarket{Title: "  ", Category: domain.CategoryTrend})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		_, err = e.markets.CreateMarket(ctx, domain.NewMarket{Title: "!!!", Category: domain.CategoryTrend})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func TestMarketService_GetMarketReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.market(t, "Cached market")
	e.bet(t, m.ID, "u1", domain.PositionYes, 75)
	e.bet(t, m.ID, "u2", domain.PositionNo, 25)

	cache := &mockCache{}
	cache.On("Get", ctx, m.ID).Return(domain.Market{}, domain.ErrNotFound).Once()
	cache.On("Set", ctx, mock.MatchedBy(func(got domain.Market) bool { return got.ID == m.ID })).Return(nil).Once()
	e.markets.cache = cache

	v, err := e.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, v.YesPercent)
	assert.Equal(t, 25, v.NoPercent)
	cache.AssertExpectations(t)

	cache.On("Get", ctx, "missing").Return(domain.Market{}, domain.ErrNotFound)
	_, err = e.markets.GetMarket(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// revisionCache keeps the newest revision per market, as the Redis cache does.
type revisionCache struct {
	mu      sync.Mutex
	entries map[string]domain.Market
}

func (c *revisionCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[m.ID]; ok && cur.Revision() > m.Revision() {
		return nil
	}
	c.entries[m.ID] = m
	return nil
}

func (c *revisionCache) Get(_ context.Context, id string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *revisionCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// interleavedMarkets runs afterRead once, between loading a row and handing
// it back, to simulate a writer committing in that gap.
type interleavedMarkets struct {
	domain.MarketStore
	afterRead func()
}

func (s *interleavedMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.MarketStore.GetByID(ctx, id)
	if f := s.afterRead; f != nil {
		s.afterRead = nil
		f()
	}
	return m, err
}

func TestMarketService_StaleReadDoesNotOverwriteCache(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.market(t, "Racing reader")
	e.bet(t, m.ID, "early", domain.PositionYes, 10)

	cache := &revisionCache{entries: make(map[string]domain.Market)}
	e.markets.cache = cache
	e.bets.fx.cache = cache
	e.resolution.fx.cache = cache
	e.markets.markets = &interleavedMarkets{
		MarketStore: e.store.Markets(),
		afterRead: func() {
			e.bet(t, m.ID, "late", domain.PositionNo, 30)
		},
	}

	// The reader loaded the row before the late bet committed.
	stale, err := e.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Zero(t, stale.TotalNoStake)

	cached, err := cache.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), cached.TotalNoStake, "the writer's snapshot survives the stale read-through")

	v, err := e.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, v.YesPercent)
	assert.Equal(t, 75, v.NoPercent)

	_, err = e.resolution.Resolve(ctx, m.ID, domain.PositionNo)
	require.NoError(t, err)
	v, err = e.markets.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolvedNo, v.Status)
	assert.NotNil(t, v.SettledAt)
}

func TestMarketService_Listing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	for i := 0; i < 25; i++ {
		e.market(t, fmt.Sprintf("Market %02d", i))
	}
	custom, err := e.markets.CreateMarket(ctx, domain.NewMarket{
		Title:          "Custom one",
		Category:       domain.CategoryCustom,
		ResolutionDate: testNow.Add(time.Hour),
	})
	require.NoError(t, err)

	open, err := e.markets.ListOpen(ctx, nil, 0)
	require.NoError(t, err)
	assert.Len(t, open, DefaultListLimit)

	cat := domain.CategoryCustom
	open, err = e.markets.ListOpen(ctx, &cat, 5)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, custom.ID, open[0].ID)
	assert.Equal(t, 50, open[0].YesPercent)

	upcoming, err := e.markets.ListUpcoming(ctx, 0)
	require.NoError(t, err)
	require.Len(t, upcoming, DefaultUpcomingLimit)
	assert.Equal(t, custom.ID, upcoming[0].ID)
}

func TestMarketService_GetMarketBySlug(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.market(t, "Slug detail")

	d, err := e.markets.GetMarketBySlug(ctx, "slug-detail")
	require.NoError(t, err)
	assert.Equal(t, m.ID, d.ID)
	assert.NotNil(t, d.Bets)
	assert.Empty(t, d.Bets)

	e.bet(t, m.ID, "u1", domain.PositionNo, 10)
	d, err = e.markets.GetMarketBySlug(ctx, "slug-detail")
	require.NoError(t, err)
	require.Len(t, d.Bets, 1)
	assert.Equal(t, 0, d.YesPercent)

	_, err = e.markets.GetMarketBySlug(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketService_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	n, err := e.markets.Seed(ctx, DefaultSeedMarkets())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.markets.Seed(ctx, DefaultSeedMarkets())
	require.NoError(t, err)
	assert.Zero(t, n)

	m, err := e.store.Markets().GetBySlug(ctx, "ai-framework-dominance")
	require.NoError(t, err)
	assert.True(t, m.IsExpert)
	assert.Equal(t, "system", m.CreatedBy)
}
