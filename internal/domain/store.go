package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetBySlug(ctx context.Context, slug string) (Market, error)
	ListOpen(ctx context.Context, filter MarketFilter) ([]Market, error)
	ListUpcoming(ctx context.Context, after time.Time, limit int) ([]Market, error)
	ListUnsettled(ctx context.Context, limit int) ([]Market, error)
}

// BetStore reads the stake ledger. Writes go through Ledger.
type BetStore interface {
	GetByID(ctx context.Context, id string) (Bet, error)
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
}

// LeaderboardStore reads per-user aggregates. Writes go through Ledger.
type LeaderboardStore interface {
	Get(ctx context.Context, userID string) (LeaderboardEntry, error)
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// Ledger performs the engine's atomic mutations.
type Ledger interface {
	// PlaceBet checks the market is open, inserts the bet under the
	// (market, user) uniqueness rule, and bumps the matching stake total, all
	// as one unit. It returns ErrNotFound, ErrMarketClosed or ErrDuplicateBet.
	PlaceBet(ctx context.Context, bet Bet) (Bet, error)

	// ClaimResolution flips an open market to its resolved status and returns
	// the market with its frozen totals. It returns ErrAlreadyResolved when
	// the market is no longer open.
	ClaimResolution(ctx context.Context, marketID string, outcome Position, at time.Time) (Market, error)

	// SettleBet writes the payout if none is set yet and folds the result into
	// the bettor's leaderboard entry in the same unit. It reports false when
	// the bet was already paid.
	SettleBet(ctx context.Context, s Settlement, at time.Time) (bool, error)

	// MarkSettled records that every bet of a resolved market is paid.
	MarkSettled(ctx context.Context, marketID string, at time.Time) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
