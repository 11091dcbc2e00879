package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// Ledger implements domain.Ledger with row locks and conditional updates.
// Every method is one transaction; serialization failures are retried.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a new Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// PlaceBet locks the market row, inserts the bet and bumps the matching
// total. The (market_id, user_id) unique constraint decides duplicates.
func (l *Ledger) PlaceBet(ctx context.Context, bet domain.Bet) (domain.Bet, error) {
	var placed domain.Bet
	err := inTx(ctx, l.pool, func(tx pgx.Tx) error {
		var m domain.Market
		var status string
		err := tx.QueryRow(ctx,
			`SELECT id, status, total_yes_stake, total_no_stake FROM markets WHERE id = $1 FOR UPDATE`, bet.MarketID,
		).Scan(&m.ID, &status, &m.TotalYesStake, &m.TotalNoStake)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("postgres: lock market %s: %w", bet.MarketID, err)
		}
		if domain.MarketStatus(status) != domain.MarketStatusOpen {
			return domain.ErrMarketClosed
		}
		var taken bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM bets WHERE market_id = $1 AND user_id = $2)`,
			bet.MarketID, bet.UserID,
		).Scan(&taken); err != nil {
			return fmt.Errorf("postgres: check duplicate bet %s: %w", bet.ID, err)
		}
		if taken {
			return domain.ErrDuplicateBet
		}
		// The row lock holds the totals steady until commit, so this check
		// and the increment below cannot interleave with another bet.
		if err := m.CheckStake(bet.StakeAmount); err != nil {
			return err
		}

		const insert = `
			INSERT INTO bets (id, market_id, user_id, position, stake_amount, confidence, placed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (market_id, user_id) DO NOTHING
			RETURNING ` + betCols
		placed, err = scanBet(tx.QueryRow(ctx, insert,
			bet.ID, bet.MarketID, bet.UserID, string(bet.Position),
			bet.StakeAmount, bet.Confidence, bet.PlacedAt,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrDuplicateBet
			}
			return fmt.Errorf("postgres: insert bet %s: %w", bet.ID, err)
		}

		column := "total_no_stake"
		if bet.Position == domain.PositionYes {
			column = "total_yes_stake"
		}
		if _, err := tx.Exec(ctx,
			`UPDATE markets SET `+column+` = `+column+` + $2, updated_at = $3 WHERE id = $1`,
			bet.MarketID, bet.StakeAmount, bet.PlacedAt,
		); err != nil {
			if isOverflow(err) {
				return fmt.Errorf("%w: market %s pool is full", domain.ErrInvalidStake, bet.MarketID)
			}
			return fmt.Errorf("postgres: bump market %s totals: %w", bet.MarketID, err)
		}
		return nil
	})
	if err != nil {
		return domain.Bet{}, err
	}
	return placed, nil
}

// ClaimResolution flips an open market to its resolved status in a single
// conditional update.
func (l *Ledger) ClaimResolution(ctx context.Context, marketID string, outcome domain.Position, at time.Time) (domain.Market, error) {
	const query = `
		UPDATE markets SET status = $2, resolved_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'open'
		RETURNING ` + marketCols

	m, err := scanMarket(l.pool.QueryRow(ctx, query, marketID, string(outcome.ResolvedStatus()), at))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("postgres: resolve market %s: %w", marketID, err)
	}

	if err := l.mustExist(ctx, marketID); err != nil {
		return domain.Market{}, err
	}
	return domain.Market{}, domain.ErrAlreadyResolved
}

// SettleBet writes the payout only while it is still NULL and applies the
// result to the bettor's leaderboard row in the same transaction.
func (l *Ledger) SettleBet(ctx context.Context, st domain.Settlement, at time.Time) (bool, error) {
	var wrote bool
	err := inTx(ctx, l.pool, func(tx pgx.Tx) error {
		wrote = false
		tag, err := tx.Exec(ctx,
			`UPDATE bets SET payout = $2, settled_at = $3 WHERE id = $1 AND payout IS NULL`,
			st.BetID, st.Payout, at,
		)
		if err != nil {
			return fmt.Errorf("postgres: settle bet %s: %w", st.BetID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO prediction_leaderboard (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
			st.UserID,
		); err != nil {
			return fmt.Errorf("postgres: ensure leaderboard row %s: %w", st.UserID, err)
		}

		var entry domain.LeaderboardEntry
		entry, err = scanEntry(tx.QueryRow(ctx,
			`SELECT `+leaderboardCols+` FROM prediction_leaderboard WHERE user_id = $1 FOR UPDATE`,
			st.UserID,
		))
		if err != nil {
			return fmt.Errorf("postgres: lock leaderboard row %s: %w", st.UserID, err)
		}

		next := entry.Apply(st, at)
		if _, err := tx.Exec(ctx, `
			UPDATE prediction_leaderboard SET
				total_predictions = $2, correct_predictions = $3, accuracy = $4,
				total_profit = $5, streak = $6, best_streak = $7, last_updated = $8
			WHERE user_id = $1`,
			next.UserID, next.TotalPredictions, next.CorrectPredictions, next.Accuracy,
			next.TotalProfit, next.Streak, next.BestStreak, next.LastUpdated,
		); err != nil {
			return fmt.Errorf("postgres: update leaderboard row %s: %w", st.UserID, err)
		}
		wrote = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return wrote, nil
}

// MarkSettled stamps a resolved market as fully paid. Calling it again is a
// no-op.
func (l *Ledger) MarkSettled(ctx context.Context, marketID string, at time.Time) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE markets SET settled_at = COALESCE(settled_at, $2), updated_at = $2
		WHERE id = $1 AND status <> 'open'`, marketID, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark market %s settled: %w", marketID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if err := l.mustExist(ctx, marketID); err != nil {
		return err
	}
	return domain.ErrMarketClosed
}

func (l *Ledger) mustExist(ctx context.Context, marketID string) error {
	var exists bool
	if err := l.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`, marketID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check market %s: %w", marketID, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

var (
	_ domain.MarketStore      = (*MarketStore)(nil)
	_ domain.BetStore         = (*BetStore)(nil)
	_ domain.LeaderboardStore = (*LeaderboardStore)(nil)
	_ domain.Ledger           = (*Ledger)(nil)
	_ domain.AuditStore       = (*AuditStore)(nil)
)
