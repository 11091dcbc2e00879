package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictpool/internal/domain"
	"github.com/alanyoungcy/predictpool/internal/events"
	"github.com/alanyoungcy/predictpool/internal/metrics"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SettlementConfig tunes the settlement worker.
type SettlementConfig struct {
	Workers   int
	LockTTL   time.Duration
	BatchSize int
}

func (c SettlementConfig) withDefaults() SettlementConfig {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// ResolutionService resolves markets and pays out their bets.
//
// Resolution is two phases. The open -> resolved flip is a single
// compare-and-swap in the ledger, so exactly one caller wins it. Settlement
// then writes each bet's payout at most once and stamps the market settled
// when every bet is paid. A crash between the phases leaves the market
// resolved but unsettled, which Resume and the sweeper pick up.
type ResolutionService struct {
	markets  domain.MarketStore
	bets     domain.BetStore
	ledger   domain.Ledger
	locks    domain.LockManager
	archiver domain.SettlementArchiver
	notifier Notifier
	metrics  *metrics.Metrics
	fx       effects
	cfg      SettlementConfig
	logger   *slog.Logger
	now      func() time.Time
}

// ResolutionDeps groups the optional collaborators of a ResolutionService.
// Nil fields disable the matching side effect; a nil Locks falls back to an
// in-process lock.
type ResolutionDeps struct {
	Locks    domain.LockManager
	Archiver domain.SettlementArchiver
	Notifier Notifier
	Cache    domain.MarketCache
	Bus      domain.EventPublisher
	Audit    domain.AuditStore
	Metrics  *metrics.Metrics
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(
	markets domain.MarketStore,
	bets domain.BetStore,
	ledger domain.Ledger,
	deps ResolutionDeps,
	cfg SettlementConfig,
	logger *slog.Logger,
) *ResolutionService {
	locks := deps.Locks
	if locks == nil {
		locks = newLocalLocks()
	}
	return &ResolutionService{
		markets:  markets,
		bets:     bets,
		ledger:   ledger,
		locks:    locks,
		archiver: deps.Archiver,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		fx: effects{
			component: "resolution_service",
			cache:     deps.Cache,
			bus:       deps.Bus,
			audit:     deps.Audit,
			logger:    logger,
		},
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Resolve declares the outcome of an open market and settles it. A second
// call on the same market fails with domain.ErrAlreadyResolved and writes
// nothing.
//
// If another worker already holds the settlement lock, the returned summary
// carries the computed totals with Settled and Skipped at zero; that worker
// performs the writes.
func (s *ResolutionService) Resolve(ctx context.Context, marketID string, outcome domain.Position) (domain.SettlementSummary, error) {
	if !outcome.Valid() {
		return domain.SettlementSummary{}, fmt.Errorf("%w: outcome must be yes or no, got %q", domain.ErrInvalidArgument, outcome)
	}

	m, err := s.ledger.ClaimResolution(ctx, marketID, outcome, s.now().UTC())
	if err != nil {
		return domain.SettlementSummary{}, fmt.Errorf("resolution_service: resolve %q: %w", marketID, err)
	}

	s.metrics.MarketResolved(string(outcome))
	s.fx.refresh(ctx, m)
	s.fx.publish(ctx, events.ChannelSettlements, events.TypeMarketResolved, events.MarketResolved{
		MarketID:    m.ID,
		Slug:        m.Slug,
		Title:       m.Title,
		Outcome:     outcome,
		TotalPool:   m.TotalPool(),
		WinningPool: m.PoolFor(outcome),
		ResolvedAt:  *m.ResolvedAt,
	}, *m.ResolvedAt)
	s.fx.auditLog(ctx, "market_resolved", map[string]any{
		"market_id":    m.ID,
		"outcome":      string(outcome),
		"total_pool":   m.TotalPool(),
		"winning_pool": m.PoolFor(outcome),
	})
	s.notify(ctx, m, outcome)

	s.logger.InfoContext(ctx, "resolution_service: market resolved",
		slog.String("market_id", m.ID),
		slog.String("outcome", string(outcome)),
		slog.Int64("total_pool", m.TotalPool()),
		slog.Int64("winning_pool", m.PoolFor(outcome)),
	)

	summary, err := s.settle(ctx, m)
	if errors.Is(err, domain.ErrLockHeld) {
		s.logger.InfoContext(ctx, "resolution_service: settlement already running",
			slog.String("market_id", m.ID),
		)
		return summary, nil
	}
	return summary, err
}

// Resume finishes the settlement of a resolved market. Bets already paid are
// skipped, so it is safe to call repeatedly.
func (s *ResolutionService) Resume(ctx context.Context, marketID string) (domain.SettlementSummary, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.SettlementSummary{}, fmt.Errorf("resolution_service: resume %q: %w", marketID, err)
	}
	if m.IsOpen() {
		return domain.SettlementSummary{}, fmt.Errorf("%w: market %q is not resolved", domain.ErrInvalidArgument, marketID)
	}
	summary, err := s.settle(ctx, m)
	if err != nil {
		return summary, fmt.Errorf("resolution_service: resume %q: %w", marketID, err)
	}
	return summary, nil
}

// Sweep resumes up to one batch of resolved-but-unsettled markets and returns
// how many it completed. Markets locked by another worker are left alone.
func (s *ResolutionService) Sweep(ctx context.Context) (int, error) {
	pending, err := s.markets.ListUnsettled(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("resolution_service: sweep: %w", err)
	}

	done := 0
	for _, m := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.settle(ctx, m); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				continue
			}
			s.logger.ErrorContext(ctx, "resolution_service: sweep settle failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		done++
	}
	if done > 0 {
		s.logger.InfoContext(ctx, "resolution_service: sweep resumed markets",
			slog.Int("count", done),
		)
	}
	return done, nil
}

// RunSweeper calls Sweep immediately and then every interval until ctx is
// cancelled.
func (s *ResolutionService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "resolution_service: sweep failed",
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Settlement recomputes the settlement report of a resolved market from the
// archive when present, otherwise from the bet ledger.
func (s *ResolutionService) Settlement(ctx context.Context, marketID string) (domain.SettlementReport, error) {
	if s.archiver != nil {
		report, err := s.archiver.Load(ctx, marketID)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "resolution_service: archive load failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("resolution_service: settlement %q: %w", marketID, err)
	}
	outcome, ok := m.Status.Outcome()
	if !ok {
		return domain.SettlementReport{}, fmt.Errorf("resolution_service: settlement %q: %w", marketID, domain.ErrNotFound)
	}
	bets, err := s.bets.ListByMarket(ctx, m.ID)
	if err != nil {
		return domain.SettlementReport{}, fmt.Errorf("resolution_service: settlement %q: %w", marketID, err)
	}

	settlements := domain.Settle(m, outcome, bets)
	summary := domain.Summarize(m, outcome, settlements)
	for _, b := range bets {
		if b.Paid() {
			summary.Skipped++
		}
	}
	return domain.SettlementReport{Market: m, Summary: summary, Settlements: settlements}, nil
}

// settle pays every unpaid bet of a resolved market under the market's
// settlement lock. Payout amounts depend only on the frozen totals, so bets
// are written in parallel; the ledger serialises each user's leaderboard row.
func (s *ResolutionService) settle(ctx context.Context, m domain.Market) (domain.SettlementSummary, error) {
	outcome, ok := m.Status.Outcome()
	if !ok {
		return domain.SettlementSummary{}, fmt.Errorf("%w: market %q is not resolved", domain.ErrInvalidArgument, m.ID)
	}

	bets, err := s.bets.ListByMarket(ctx, m.ID)
	if err != nil {
		return domain.SettlementSummary{}, fmt.Errorf("resolution_service: list bets for %q: %w", m.ID, err)
	}
	settlements := domain.Settle(m, outcome, bets)
	summary := domain.Summarize(m, outcome, settlements)
	if m.SettledAt != nil {
		summary.Skipped = len(bets)
		return summary, nil
	}

	unlock, err := s.locks.Acquire(ctx, "settle:"+m.ID, s.cfg.LockTTL)
	if err != nil {
		return summary, err
	}
	defer unlock()

	start := s.now()
	var settled, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, st := range settlements {
		if bets[i].Paid() {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			wrote, err := s.ledger.SettleBet(gctx, st, s.now().UTC())
			if err != nil {
				return fmt.Errorf("settle bet %q: %w", st.BetID, err)
			}
			if !wrote {
				skipped.Add(1)
				return nil
			}
			settled.Add(1)
			s.metrics.BetSettled(st.Won, st.Payout)
			return nil
		})
	}
	err = g.Wait()
	summary.Settled = int(settled.Load())
	summary.Skipped = int(skipped.Load())
	if err != nil {
		return summary, fmt.Errorf("resolution_service: settle %q: %w", m.ID, err)
	}

	settledAt := s.now().UTC()
	if err := s.ledger.MarkSettled(ctx, m.ID, settledAt); err != nil {
		return summary, fmt.Errorf("resolution_service: mark %q settled: %w", m.ID, err)
	}
	s.metrics.MarketSettled(summary.Unclaimed, s.now().Sub(start))
	if fresh, err := s.markets.GetByID(ctx, m.ID); err == nil {
		s.fx.refresh(ctx, fresh)
	} else {
		s.fx.invalidate(ctx, m.ID)
	}

	if s.archiver != nil {
		m.SettledAt = &settledAt
		if err := s.archiver.Archive(ctx, domain.SettlementReport{
			Market:      m,
			Summary:     summary,
			Settlements: settlements,
		}); err != nil {
			s.logger.WarnContext(ctx, "resolution_service: archive failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.fx.publish(ctx, events.ChannelSettlements, events.TypeMarketSettled, events.MarketSettled{
		SettlementSummary: summary,
		SettledAt:         settledAt,
	}, settledAt)

	level := slog.LevelInfo
	if summary.Unclaimed > 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "resolution_service: market settled",
		slog.String("market_id", m.ID),
		slog.String("outcome", string(outcome)),
		slog.Int64("total_pool", summary.TotalPool),
		slog.Int64("paid_out", summary.PaidOut),
		slog.Int64("unclaimed", summary.Unclaimed),
		slog.Int("settled", summary.Settled),
		slog.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (s *ResolutionService) notify(ctx context.Context, m domain.Market, outcome domain.Position) {
	if s.notifier == nil {
		return
	}
	title := fmt.Sprintf("Market resolved %s", outcome)
	msg := fmt.Sprintf("%s\npool %d, winning side %d", m.Title, m.TotalPool(), m.PoolFor(outcome))
	if err := s.notifier.Notify(ctx, events.TypeMarketResolved, title, msg); err != nil {
		s.logger.WarnContext(ctx, "resolution_service: notify failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
