package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// DefaultMarketTTL bounds how stale a cached market can get if an
// invalidation is lost.
const DefaultMarketTTL = 5 * time.Minute

//go:embed scripts/market_set.lua
var marketSetLua string

// MarketCache implements domain.MarketCache as a hash under market:{id}
// holding the JSON snapshot and its revision. Set never replaces a newer
// revision, so a reader that loaded the row before a write cannot clobber
// the snapshot the writer stored after committing.
type MarketCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	setCAS *redis.Script
}

// NewMarketCache creates a MarketCache. A non-positive ttl falls back to
// DefaultMarketTTL.
func NewMarketCache(c *Client, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketCache{rdb: c.Underlying(), ttl: ttl, setCAS: redis.NewScript(marketSetLua)}
}

func marketKey(id string) string { return "market:" + id }

// Set stores a market snapshot unless a newer revision is already cached.
// A skipped write is not an error.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(market)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.ID, err)
	}
	err = mc.setCAS.Run(ctx, mc.rdb,
		[]string{marketKey(market.ID)},
		market.Revision(), data, mc.ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ID, err)
	}
	return nil
}

// Get returns the cached market or domain.ErrNotFound on a miss.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var market domain.Market
	if err := json.Unmarshal(data, &market); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return market, nil
}

// Invalidate drops the cached market.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
