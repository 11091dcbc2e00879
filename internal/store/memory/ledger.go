package memory

import (
	"context"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// Ledger implements domain.Ledger.
type Ledger struct{ s *Store }

// PlaceBet inserts the bet and bumps the market total in one critical section.
func (l *Ledger) PlaceBet(_ context.Context, bet domain.Bet) (domain.Bet, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[bet.MarketID]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	if !m.IsOpen() {
		return domain.Bet{}, domain.ErrMarketClosed
	}
	key := betKey{marketID: bet.MarketID, userID: bet.UserID}
	if _, dup := s.betIndex[key]; dup {
		return domain.Bet{}, domain.ErrDuplicateBet
	}
	if err := m.CheckStake(bet.StakeAmount); err != nil {
		return domain.Bet{}, err
	}

	bet.Payout = nil
	bet.SettledAt = nil
	s.bets[bet.ID] = bet
	s.betIndex[key] = bet.ID
	s.marketBets[bet.MarketID] = append(s.marketBets[bet.MarketID], bet.ID)
	s.userBets[bet.UserID] = append(s.userBets[bet.UserID], bet.ID)

	if bet.Position == domain.PositionYes {
		m.TotalYesStake += bet.StakeAmount
	} else {
		m.TotalNoStake += bet.StakeAmount
	}
	m.UpdatedAt = bet.PlacedAt
	s.markets[m.ID] = m

	return bet, nil
}

// ClaimResolution performs the open -> resolved compare-and-swap.
func (l *Ledger) ClaimResolution(_ context.Context, marketID string, outcome domain.Position, at time.Time) (domain.Market, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	if !m.IsOpen() {
		return domain.Market{}, domain.ErrAlreadyResolved
	}
	m.Status = outcome.ResolvedStatus()
	m.ResolvedAt = &at
	m.UpdatedAt = at
	s.markets[marketID] = m
	return m, nil
}

// SettleBet writes the payout once and updates the bettor's entry.
func (l *Ledger) SettleBet(_ context.Context, st domain.Settlement, at time.Time) (bool, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[st.BetID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b.Paid() {
		return false, nil
	}
	payout := st.Payout
	b.Payout = &payout
	b.SettledAt = &at
	s.bets[b.ID] = b

	s.leaderboard[st.UserID] = s.leaderboard[st.UserID].Apply(st, at)
	return true, nil
}

// MarkSettled stamps a resolved market as fully paid.
func (l *Ledger) MarkSettled(_ context.Context, marketID string, at time.Time) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	if !m.Status.Resolved() {
		return domain.ErrMarketClosed
	}
	if m.SettledAt == nil {
		m.SettledAt = &at
		m.UpdatedAt = at
		s.markets[marketID] = m
	}
	return nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct{ s *Store }

// Log appends an audit entry.
func (as *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()

	as.s.audit = append(as.s.audit, domain.AuditEntry{
		ID:        int64(len(as.s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns audit entries, newest first.
func (as *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	as.s.mu.RLock()
	defer as.s.mu.RUnlock()

	out := make([]domain.AuditEntry, 0, len(as.s.audit))
	for i := len(as.s.audit) - 1; i >= 0; i-- {
		e := as.s.audit[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	return limit(out, opts.Limit), nil
}
