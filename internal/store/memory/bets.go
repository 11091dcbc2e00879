package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// BetStore implements domain.BetStore.
type BetStore struct{ s *Store }

// GetByID returns the bet with the given id.
func (bs *BetStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	bs.s.mu.RLock()
	defer bs.s.mu.RUnlock()

	b, ok := bs.s.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

// ListByMarket returns every bet on a market in placement order.
func (bs *BetStore) ListByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	bs.s.mu.RLock()
	defer bs.s.mu.RUnlock()

	return bs.s.collect(bs.s.marketBets[marketID]), nil
}

// ListByUser returns a user's bets, newest first.
func (bs *BetStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	bs.s.mu.RLock()
	defer bs.s.mu.RUnlock()

	bets := bs.s.collect(bs.s.userBets[userID])
	bets = slices.DeleteFunc(bets, func(b domain.Bet) bool {
		return (opts.Since != nil && b.PlacedAt.Before(*opts.Since)) ||
			(opts.Until != nil && b.PlacedAt.After(*opts.Until))
	})
	sort.SliceStable(bets, func(i, j int) bool {
		return bets[i].PlacedAt.After(bets[j].PlacedAt)
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(bets) {
			return nil, nil
		}
		bets = bets[opts.Offset:]
	}
	return limit(bets, opts.Limit), nil
}

func (s *Store) collect(ids []string) []domain.Bet {
	out := make([]domain.Bet, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.bets[id])
	}
	return out
}

// LeaderboardStore implements domain.LeaderboardStore.
type LeaderboardStore struct{ s *Store }

// Get returns a user's entry.
func (ls *LeaderboardStore) Get(_ context.Context, userID string) (domain.LeaderboardEntry, error) {
	ls.s.mu.RLock()
	defer ls.s.mu.RUnlock()

	e, ok := ls.s.leaderboard[userID]
	if !ok {
		return domain.LeaderboardEntry{}, domain.ErrNotFound
	}
	return e, nil
}

// Top returns entries ordered by accuracy, then total profit, descending.
func (ls *LeaderboardStore) Top(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	ls.s.mu.RLock()
	defer ls.s.mu.RUnlock()

	out := make([]domain.LeaderboardEntry, 0, len(ls.s.leaderboard))
	for _, e := range ls.s.leaderboard {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Accuracy != out[j].Accuracy {
			return out[i].Accuracy > out[j].Accuracy
		}
		if out[i].TotalProfit != out[j].TotalProfit {
			return out[i].TotalProfit > out[j].TotalProfit
		}
		return out[i].UserID < out[j].UserID
	})
	return limit(out, n), nil
}
