package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// LeaderboardService serves the per-user aggregates.
type LeaderboardService struct {
	entries domain.LeaderboardStore
}

// NewLeaderboardService creates a LeaderboardService.
func NewLeaderboardService(entries domain.LeaderboardStore) *LeaderboardService {
	return &LeaderboardService{entries: entries}
}

// Top returns the best entries by accuracy, then profit, with 1-based ranks.
func (s *LeaderboardService) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.entries.Top(ctx, clampLimit(limit, DefaultListLimit))
	if err != nil {
		return nil, fmt.Errorf("leaderboard_service: top: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}

// Get returns one user's entry.
func (s *LeaderboardService) Get(ctx context.Context, userID string) (domain.LeaderboardEntry, error) {
	e, err := s.entries.Get(ctx, userID)
	if err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("leaderboard_service: get %q: %w", userID, err)
	}
	return e, nil
}
