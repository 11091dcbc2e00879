package domain

import (
	"fmt"
	"strings"
	"time"
)

// Position is the side of a binary market a bet backs.
type Position string

const (
	PositionYes Position = "yes"
	PositionNo  Position = "no"
)

// Valid reports whether p is yes or no.
func (p Position) Valid() bool { return p == PositionYes || p == PositionNo }

// ParsePosition normalises s and returns the matching Position.
func ParsePosition(s string) (Position, error) {
	p := Position(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: position must be yes or no, got %q", ErrInvalidArgument, s)
	}
	return p, nil
}

// ResolvedStatus maps an outcome to the terminal market status.
func (p Position) ResolvedStatus() MarketStatus {
	if p == PositionYes {
		return MarketStatusResolvedYes
	}
	return MarketStatusResolvedNo
}

// Bet is a single stake on one side of a market. At most one exists per
// (MarketID, UserID). Payout is nil until the market is settled and is
// written exactly once.
type Bet struct {
	ID          string     `json:"id"`
	MarketID    string     `json:"market_id"`
	UserID      string     `json:"user_id"`
	Position    Position   `json:"position"`
	StakeAmount int64      `json:"stake_amount"`
	Confidence  int        `json:"confidence"`
	PlacedAt    time.Time  `json:"placed_at"`
	Payout      *int64     `json:"payout,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty"`
}

// Paid reports whether the bet's payout has been written.
func (b Bet) Paid() bool { return b.Payout != nil }

// UserBet is a bet enriched with the market it was placed on.
type UserBet struct {
	Bet
	Market *MarketView `json:"market,omitempty"`
}

// PlaceBetRequest carries the inputs of a bet placement.
type PlaceBetRequest struct {
	MarketID    string   `json:"market_id"`
	UserID      string   `json:"user_id"`
	Position    Position `json:"position"`
	StakeAmount int64    `json:"stake_amount"`
	Confidence  int      `json:"confidence"`
}

// Validate checks the request fields. It does not look at the market.
func (r PlaceBetRequest) Validate() error {
	if r.StakeAmount <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidStake, r.StakeAmount)
	}
	if strings.TrimSpace(r.MarketID) == "" {
		return fmt.Errorf("%w: market id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if !r.Position.Valid() {
		return fmt.Errorf("%w: position must be yes or no, got %q", ErrInvalidArgument, r.Position)
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return fmt.Errorf("%w: confidence must be within 0-100, got %d", ErrInvalidArgument, r.Confidence)
	}
	return nil
}
