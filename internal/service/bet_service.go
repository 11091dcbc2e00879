package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
	"github.com/alanyoungcy/predictpool/internal/metrics"
)

// BetService places stakes and lists a user's bets.
type BetService struct {
	ledger  domain.Ledger
	markets domain.MarketStore
	bets    domain.BetStore
	metrics *metrics.Metrics
	fx      effects
	logger  *slog.Logger
	now     func() time.Time
}

// NewBetService creates a BetService. cache, bus, audit and m may be nil.
func NewBetService(
	ledger domain.Ledger,
	markets domain.MarketStore,
	bets domain.BetStore,
	cache domain.MarketCache,
	bus domain.EventPublisher,
	audit domain.AuditStore,
	m *metrics.Metrics,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		ledger:  ledger,
		markets: markets,
		bets:    bets,
		metrics: m,
		fx: effects{
			component: "bet_service",
			cache:     cache,
			bus:       bus,
			audit:     audit,
			logger:    logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

// PlaceBet validates the request, then hands it to the ledger, which checks
// existence, openness and uniqueness in that order and bumps the pool in the
// same unit.
func (s *BetService) PlaceBet(ctx context.Context, req domain.PlaceBetRequest) (domain.Bet, error) {
	if err := req.Validate(); err != nil {
		s.metrics.BetRejected(rejectReason(err))
		return domain.Bet{}, err
	}

	now := s.now().UTC()
	bet, err := s.ledger.PlaceBet(ctx, domain.Bet{
		ID:          uuid.NewString(),
		MarketID:    req.MarketID,
		UserID:      req.UserID,
		Position:    req.Position,
		StakeAmount: req.StakeAmount,
		Confidence:  req.Confidence,
		PlacedAt:    now,
	})
	if err != nil {
		s.metrics.BetRejected(rejectReason(err))
		return domain.Bet{}, fmt.Errorf("bet_service: place on %q: %w", req.MarketID, err)
	}

	s.metrics.BetPlaced(string(bet.Position), bet.StakeAmount)

	evt := events.BetPlaced{
		BetID:       bet.ID,
		MarketID:    bet.MarketID,
		UserID:      bet.UserID,
		Position:    bet.Position,
		StakeAmount: bet.StakeAmount,
		Confidence:  bet.Confidence,
	}
	if m, err := s.markets.GetByID(ctx, bet.MarketID); err != nil {
		s.fx.invalidate(ctx, bet.MarketID)
	} else {
		s.fx.refresh(ctx, m)
		v := m.View()
		evt.TotalYesStake, evt.TotalNoStake = m.TotalYesStake, m.TotalNoStake
		evt.YesPercent, evt.NoPercent = v.YesPercent, v.NoPercent
	}
	s.fx.publish(ctx, events.ChannelBets, events.TypeBetPlaced, evt, now)
	s.fx.auditLog(ctx, "bet_placed", map[string]any{
		"bet_id":    bet.ID,
		"market_id": bet.MarketID,
		"user_id":   bet.UserID,
		"position":  string(bet.Position),
		"stake":     bet.StakeAmount,
	})

	s.logger.InfoContext(ctx, "bet_service: bet placed",
		slog.String("bet_id", bet.ID),
		slog.String("market_id", bet.MarketID),
		slog.String("user_id", bet.UserID),
		slog.String("position", string(bet.Position)),
		slog.Int64("stake", bet.StakeAmount),
	)
	return bet, nil
}

// GetBet returns a single bet by id.
func (s *BetService) GetBet(ctx context.Context, id string) (domain.Bet, error) {
	if id == "" {
		return domain.Bet{}, fmt.Errorf("%w: bet id is required", domain.ErrInvalidArgument)
	}
	b, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get bet %q: %w", id, err)
	}
	return b, nil
}

// GetUserBets returns a page of a user's bets, newest first, each with its
// market. opts may narrow the placement window.
func (s *BetService) GetUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.UserBet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	if err := checkListOpts(opts); err != nil {
		return nil, err
	}

	bets, err := s.bets.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list bets for %q: %w", userID, err)
	}

	seen := make(map[string]*domain.MarketView)
	out := make([]domain.UserBet, 0, len(bets))
	for _, b := range bets {
		view, ok := seen[b.MarketID]
		if !ok {
			m, err := s.markets.GetByID(ctx, b.MarketID)
			switch {
			case err == nil:
				v := m.View()
				view = &v
			case errors.Is(err, domain.ErrNotFound):
			default:
				return nil, fmt.Errorf("bet_service: market %q for user bets: %w", b.MarketID, err)
			}
			seen[b.MarketID] = view
		}
		out = append(out, domain.UserBet{Bet: b, Market: view})
	}
	return out, nil
}

// checkListOpts rejects negative paging and an inverted time window.
func checkListOpts(opts domain.ListOpts) error {
	if opts.Limit < 0 || opts.Offset < 0 {
		return fmt.Errorf("%w: limit and offset must not be negative", domain.ErrInvalidArgument)
	}
	if opts.Since != nil && opts.Until != nil && opts.Since.After(*opts.Until) {
		return fmt.Errorf("%w: since is after until", domain.ErrInvalidArgument)
	}
	return nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidStake):
		return "invalid_stake"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, domain.ErrDuplicateBet):
		return "duplicate_bet"
	default:
		return "error"
	}
}
