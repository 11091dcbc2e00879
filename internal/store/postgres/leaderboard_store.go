package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// LeaderboardStore implements domain.LeaderboardStore using PostgreSQL.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

// NewLeaderboardStore creates a new LeaderboardStore backed by the given pool.
func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

const leaderboardCols = `user_id, total_predictions, correct_predictions, accuracy,
	total_profit, streak, best_streak, last_updated`

func scanEntry(row pgx.Row) (domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := row.Scan(
		&e.UserID, &e.TotalPredictions, &e.CorrectPredictions, &e.Accuracy,
		&e.TotalProfit, &e.Streak, &e.BestStreak, &e.LastUpdated,
	)
	return e, err
}

// Get returns the entry for a user.
func (s *LeaderboardStore) Get(ctx context.Context, userID string) (domain.LeaderboardEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leaderboardCols+` FROM prediction_leaderboard WHERE user_id = $1`, userID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeaderboardEntry{}, domain.ErrNotFound
		}
		return domain.LeaderboardEntry{}, fmt.Errorf("postgres: get leaderboard entry %s: %w", userID, err)
	}
	return e, nil
}

// Top returns entries ordered by accuracy, then profit.
func (s *LeaderboardStore) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	const query = `SELECT ` + leaderboardCols + ` FROM prediction_leaderboard
		ORDER BY accuracy DESC, total_profit DESC, user_id ASC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: top leaderboard rows: %w", err)
	}
	return entries, nil
}
