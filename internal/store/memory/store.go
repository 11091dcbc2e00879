// Package memory implements the domain store interfaces in process memory.
// A single mutex serialises every mutation, which gives the same per-market
// and per-user ordering guarantees the PostgreSQL ledger gets from row locks.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

type betKey struct {
	marketID string
	userID   string
}

// Store holds markets, bets, leaderboard entries and the audit log.
type Store struct {
	mu sync.RWMutex

	markets     map[string]domain.Market
	slugs       map[string]string
	bets        map[string]domain.Bet
	betIndex    map[betKey]string
	marketBets  map[string][]string
	userBets    map[string][]string
	leaderboard map[string]domain.LeaderboardEntry
	audit       []domain.AuditEntry
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		markets:     make(map[string]domain.Market),
		slugs:       make(map[string]string),
		bets:        make(map[string]domain.Bet),
		betIndex:    make(map[betKey]string),
		marketBets:  make(map[string][]string),
		userBets:    make(map[string][]string),
		leaderboard: make(map[string]domain.LeaderboardEntry),
	}
}

// Markets returns the store as a domain.MarketStore.
func (s *Store) Markets() *MarketStore { return &MarketStore{s: s} }

// Bets returns the store as a domain.BetStore.
func (s *Store) Bets() *BetStore { return &BetStore{s: s} }

// Leaderboard returns the store as a domain.LeaderboardStore.
func (s *Store) Leaderboard() *LeaderboardStore { return &LeaderboardStore{s: s} }

// Ledger returns the store as a domain.Ledger.
func (s *Store) Ledger() *Ledger { return &Ledger{s: s} }

// Audit returns the store as a domain.AuditStore.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

// MarketStore implements domain.MarketStore.
type MarketStore struct{ s *Store }

// Create inserts a market. A taken ID or slug yields domain.ErrAlreadyExists.
func (ms *MarketStore) Create(_ context.Context, m domain.Market) error {
	s := ms.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if _, ok := s.slugs[m.Slug]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	s.slugs[m.Slug] = m.ID
	return nil
}

// GetByID returns the market with the given id.
func (ms *MarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	m, ok := ms.s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// GetBySlug returns the market with the given slug.
func (ms *MarketStore) GetBySlug(_ context.Context, slug string) (domain.Market, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	id, ok := ms.s.slugs[slug]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return ms.s.markets[id], nil
}

// ListOpen returns open markets, newest first.
func (ms *MarketStore) ListOpen(_ context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	var out []domain.Market
	for _, m := range ms.s.markets {
		if !m.IsOpen() {
			continue
		}
		if filter.Category != nil && m.Category != *filter.Category {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return limit(out, filter.Limit), nil
}

// ListUpcoming returns open markets whose resolution date is after the given
// instant, soonest first.
func (ms *MarketStore) ListUpcoming(_ context.Context, after time.Time, n int) ([]domain.Market, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	var out []domain.Market
	for _, m := range ms.s.markets {
		if m.IsOpen() && m.ResolutionDate.After(after) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolutionDate.Before(out[j].ResolutionDate)
	})
	return limit(out, n), nil
}

// ListUnsettled returns resolved markets that still have unpaid bets.
func (ms *MarketStore) ListUnsettled(_ context.Context, n int) ([]domain.Market, error) {
	ms.s.mu.RLock()
	defer ms.s.mu.RUnlock()

	var out []domain.Market
	for _, m := range ms.s.markets {
		if m.Status.Resolved() && m.SettledAt == nil {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolvedAt.Before(*out[j].ResolvedAt)
	})
	return limit(out, n), nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

var (
	_ domain.MarketStore      = (*MarketStore)(nil)
	_ domain.BetStore         = (*BetStore)(nil)
	_ domain.LeaderboardStore = (*LeaderboardStore)(nil)
	_ domain.Ledger           = (*Ledger)(nil)
	_ domain.AuditStore       = (*AuditStore)(nil)
)
