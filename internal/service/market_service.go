package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
	"github.com/alanyoungcy/predictpool/internal/metrics"
)

const (
	DefaultListLimit     = 20
	DefaultUpcomingLimit = 10
	MaxListLimit         = 100
)

// MarketService creates markets and serves the read side.
type MarketService struct {
	markets domain.MarketStore
	bets    domain.BetStore
	cache   domain.MarketCache
	metrics *metrics.Metrics
	fx      effects
	logger  *slog.Logger
	now     func() time.Time
}

// NewMarketService creates a MarketService. cache, bus, audit and m may be nil.
func NewMarketService(
	markets domain.MarketStore,
	bets domain.BetStore,
	cache domain.MarketCache,
	bus domain.EventPublisher,
	audit domain.AuditStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		bets:    bets,
		cache:   cache,
		metrics: m,
		fx: effects{
			component: "market_service",
			cache:     cache,
			bus:       bus,
			audit:     audit,
			logger:    logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

// CreateMarket inserts an open market with empty pools. The slug is derived
// from the title when not given.
func (s *MarketService) CreateMarket(ctx context.Context, in domain.NewMarket) (domain.Market, error) {
	if err := in.Validate(); err != nil {
		return domain.Market{}, err
	}

	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(in.Title)
	}
	if slug == "" {
		return domain.Market{}, fmt.Errorf("%w: title yields an empty slug", domain.ErrInvalidArgument)
	}

	now := s.now().UTC()
	m := domain.Market{
		ID:                 uuid.NewString(),
		Slug:               slug,
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		Category:           in.Category,
		TargetEntity:       in.TargetEntity,
		TargetMetric:       in.TargetMetric,
		TargetValue:        in.TargetValue,
		ResolutionCriteria: in.ResolutionCriteria,
		ResolutionDate:     in.ResolutionDate.UTC(),
		CreatedBy:          in.CreatedBy,
		IsExpert:           in.IsExpert,
		Status:             domain.MarketStatusOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.markets.Create(ctx, m); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.Market{}, fmt.Errorf("market_service: slug %q: %w", slug, err)
		}
		return domain.Market{}, fmt.Errorf("market_service: create: %w", err)
	}

	s.metrics.MarketCreated()
	s.fx.publish(ctx, events.ChannelMarkets, events.TypeMarketCreated, events.MarketCreated{
		MarketID:       m.ID,
		Slug:           m.Slug,
		Title:          m.Title,
		Category:       m.Category,
		ResolutionDate: m.ResolutionDate,
		CreatedBy:      m.CreatedBy,
	}, now)
	s.fx.auditLog(ctx, "market_created", map[string]any{
		"market_id": m.ID,
		"slug":      m.Slug,
		"category":  string(m.Category),
		"by":        m.CreatedBy,
	})

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("slug", m.Slug),
		slog.String("category", string(m.Category)),
	)
	return m, nil
}

// GetMarket returns a market with its display split, reading through the
// cache.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.MarketView, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m.View(), nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.MarketView{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return m.View(), nil
}

// GetMarketBySlug returns the market detail with every bet placed on it.
func (s *MarketService) GetMarketBySlug(ctx context.Context, slug string) (domain.MarketDetail, error) {
	m, err := s.markets.GetBySlug(ctx, slug)
	if err != nil {
		return domain.MarketDetail{}, fmt.Errorf("market_service: get by slug %q: %w", slug, err)
	}
	bets, err := s.bets.ListByMarket(ctx, m.ID)
	if err != nil {
		return domain.MarketDetail{}, fmt.Errorf("market_service: list bets for %q: %w", m.ID, err)
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	return domain.MarketDetail{MarketView: m.View(), Bets: bets}, nil
}

// ListOpen returns open markets, newest first, optionally in one category.
func (s *MarketService) ListOpen(ctx context.Context, category *domain.Category, limit int) ([]domain.MarketView, error) {
	markets, err := s.markets.ListOpen(ctx, domain.MarketFilter{
		Category: category,
		Limit:    clampLimit(limit, DefaultListLimit),
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list open: %w", err)
	}
	return views(markets), nil
}

// ListUpcoming returns open markets whose resolution date is still ahead,
// soonest first.
func (s *MarketService) ListUpcoming(ctx context.Context, limit int) ([]domain.MarketView, error) {
	markets, err := s.markets.ListUpcoming(ctx, s.now().UTC(), clampLimit(limit, DefaultUpcomingLimit))
	if err != nil {
		return nil, fmt.Errorf("market_service: list upcoming: %w", err)
	}
	return views(markets), nil
}

// Seed inserts markets whose slug is not taken yet and reports how many were
// created. Running it twice creates nothing the second time.
func (s *MarketService) Seed(ctx context.Context, markets []domain.NewMarket) (int, error) {
	created := 0
	for _, in := range markets {
		slug := Slugify(in.Slug)
		if slug == "" {
			slug = Slugify(in.Title)
		}
		if _, err := s.markets.GetBySlug(ctx, slug); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return created, fmt.Errorf("market_service: seed lookup %q: %w", slug, err)
		}

		if _, err := s.CreateMarket(ctx, in); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return created, fmt.Errorf("market_service: seed %q: %w", slug, err)
		}
		created++
	}

	s.logger.InfoContext(ctx, "market_service: seeded markets",
		slog.Int("created", created),
		slog.Int("total", len(markets)),
	)
	return created, nil
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func views(markets []domain.Market) []domain.MarketView {
	out := make([]domain.MarketView, 0, len(markets))
	for _, m := range markets {
		out = append(out, m.View())
	}
	return out
}
