package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen        MarketStatus = "open"
	MarketStatusResolvedYes MarketStatus = "resolved_yes"
	MarketStatusResolvedNo  MarketStatus = "resolved_no"
)

// Resolved reports whether the status is terminal.
func (s MarketStatus) Resolved() bool {
	return s == MarketStatusResolvedYes || s == MarketStatusResolvedNo
}

// Outcome returns the declared outcome of a resolved status.
func (s MarketStatus) Outcome() (Position, bool) {
	switch s {
	case MarketStatusResolvedYes:
		return PositionYes, true
	case MarketStatusResolvedNo:
		return PositionNo, true
	default:
		return "", false
	}
}

// Category is the closed set of prediction categories.
type Category string

const (
	CategoryToolGrowth  Category = "tool_growth"
	CategoryToolDecline Category = "tool_decline"
	CategoryNewRelease  Category = "new_release"
	CategoryAcquisition Category = "acquisition"
	CategoryTrend       Category = "trend"
	CategoryCustom      Category = "custom"
)

var categories = map[Category]bool{
	CategoryToolGrowth:  true,
	CategoryToolDecline: true,
	CategoryNewRelease:  true,
	CategoryAcquisition: true,
	CategoryTrend:       true,
	CategoryCustom:      true,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool { return categories[c] }

// ParseCategory normalises s and returns the matching Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, s)
	}
	return c, nil
}

// Market is a single binary-outcome prediction question with its stake pool.
type Market struct {
	ID                 string       `json:"id"`
	Slug               string       `json:"slug"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	Category           Category     `json:"category"`
	TargetEntity       *string      `json:"target_entity,omitempty"`
	TargetMetric       *string      `json:"target_metric,omitempty"`
	TargetValue        *float64     `json:"target_value,omitempty"`
	ResolutionCriteria string       `json:"resolution_criteria"`
	ResolutionDate     time.Time    `json:"resolution_date"`
	CreatedBy          string       `json:"created_by"`
	IsExpert           bool         `json:"is_expert_prediction"`
	Status             MarketStatus `json:"status"`
	TotalYesStake      int64        `json:"total_yes_stake"`
	TotalNoStake       int64        `json:"total_no_stake"`
	ResolvedAt         *time.Time   `json:"resolved_at,omitempty"`
	SettledAt          *time.Time   `json:"settled_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// IsOpen reports whether the market still accepts bets.
func (m Market) IsOpen() bool { return m.Status == MarketStatusOpen }

// TotalPool is the sum of both sides' stakes. Ledgers admit a bet only when
// CheckStake passes, so the sum never exceeds math.MaxInt64.
func (m Market) TotalPool() int64 { return m.TotalYesStake + m.TotalNoStake }

// Revision orders snapshots of one market. A market only moves forward: the
// pool grows while open, then it resolves, then it settles. Later snapshots
// compare greater as plain strings, which lets caches reject stale writes.
func (m Market) Revision() string {
	var resolved, settled int
	if m.Status.Resolved() {
		resolved = 1
	}
	if m.SettledAt != nil {
		settled = 1
	}
	return fmt.Sprintf("%d.%d.%019d", resolved, settled, m.TotalPool())
}

// CheckStake rejects a stake that would push the pool past math.MaxInt64.
// Ledgers call it inside the same critical section that bumps the totals.
func (m Market) CheckStake(stake int64) error {
	if stake <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidStake, stake)
	}
	if stake > math.MaxInt64-m.TotalPool() {
		return fmt.Errorf("%w: %d would overflow the pool of market %s (%d staked)",
			ErrInvalidStake, stake, m.ID, m.TotalPool())
	}
	return nil
}

// PoolFor returns the stake total on the given side.
func (m Market) PoolFor(p Position) int64 {
	if p == PositionYes {
		return m.TotalYesStake
	}
	return m.TotalNoStake
}

// View attaches the display percentages to the market.
func (m Market) View() MarketView {
	yes, no := Percentages(m.TotalYesStake, m.TotalNoStake)
	return MarketView{Market: m, YesPercent: yes, NoPercent: no}
}

// MarketView is a market plus its display-only yes/no split. It is never an
// input to resolution math.
type MarketView struct {
	Market
	YesPercent int `json:"yes_percent"`
	NoPercent  int `json:"no_percent"`
}

// MarketDetail is a market view together with every bet placed on it.
type MarketDetail struct {
	MarketView
	Bets []Bet `json:"bets"`
}

// NewMarket carries the caller-supplied fields for market creation.
type NewMarket struct {
	Slug               string    `json:"slug"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Category           Category  `json:"category"`
	TargetEntity       *string   `json:"target_entity,omitempty"`
	TargetMetric       *string   `json:"target_metric,omitempty"`
	TargetValue        *float64  `json:"target_value,omitempty"`
	ResolutionCriteria string    `json:"resolution_criteria"`
	ResolutionDate     time.Time `json:"resolution_date"`
	CreatedBy          string    `json:"created_by"`
	IsExpert           bool      `json:"is_expert_prediction"`
}

// Validate checks the fields the engine depends on. Resolution dates in the
// past are accepted; rejecting them is left to callers.
func (n NewMarket) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if !n.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, n.Category)
	}
	return nil
}

// MarketFilter narrows ListOpen queries.
type MarketFilter struct {
	Category *Category
	Limit    int
}
