package domain

import "math/bits"

// Settlement is the computed result for a single bet of a resolved market.
type Settlement struct {
	BetID       string   `json:"bet_id"`
	MarketID    string   `json:"market_id"`
	UserID      string   `json:"user_id"`
	Position    Position `json:"position"`
	StakeAmount int64    `json:"stake_amount"`
	Won         bool     `json:"won"`
	Payout      int64    `json:"payout"`
}

// Payout computes the pari-mutuel share floor(stake * totalPool / winningPool).
// It returns 0 when nobody backed the winning side.
func Payout(stake, winningPool, totalPool int64) int64 {
	if stake <= 0 || winningPool <= 0 || totalPool <= 0 {
		return 0
	}
	// stake <= winningPool, so the quotient fits in totalPool and the high
	// word is always below the divisor.
	hi, lo := bits.Mul64(uint64(stake), uint64(totalPool))
	if hi >= uint64(winningPool) {
		return totalPool
	}
	q, _ := bits.Div64(hi, lo, uint64(winningPool))
	if q > uint64(totalPool) {
		return totalPool
	}
	return int64(q)
}

// Settle computes the settlement of every bet given the frozen market totals
// and the declared outcome.
func Settle(m Market, outcome Position, bets []Bet) []Settlement {
	totalPool := m.TotalPool()
	winningPool := m.PoolFor(outcome)

	out := make([]Settlement, 0, len(bets))
	for _, b := range bets {
		won := b.Position == outcome
		var payout int64
		if won {
			payout = Payout(b.StakeAmount, winningPool, totalPool)
		}
		out = append(out, Settlement{
			BetID:       b.ID,
			MarketID:    b.MarketID,
			UserID:      b.UserID,
			Position:    b.Position,
			StakeAmount: b.StakeAmount,
			Won:         won,
			Payout:      payout,
		})
	}
	return out
}

// Percentages returns the rounded display split of a pool. An empty pool
// reads 50/50.
func Percentages(yesStake, noStake int64) (yes, no int) {
	y, n := uint64(max(yesStake, 0)), uint64(max(noStake, 0))
	if y+n == 0 {
		return 50, 50
	}
	// Two non-negative int64 values always sum within uint64.
	yes = roundPercent(y, y+n)
	return yes, 100 - yes
}

// RoundPercent returns part/whole*100 rounded half up, or 0 for an empty whole.
// part is clamped to [0, whole].
func RoundPercent(part, whole int64) int {
	if whole <= 0 {
		return 0
	}
	return roundPercent(uint64(min(max(part, 0), whole)), uint64(whole))
}

// roundPercent computes round(100*part/whole) with a 128-bit product so no
// stake size can overflow. Requires 0 <= part <= whole and whole > 0.
func roundPercent(part, whole uint64) int {
	hi, lo := bits.Mul64(part, 100)
	q, r := bits.Div64(hi, lo, whole)
	if r >= whole-r {
		q++
	}
	return int(q)
}

// SettlementSummary reports the aggregate result of settling a market.
type SettlementSummary struct {
	MarketID    string   `json:"market_id"`
	Outcome     Position `json:"outcome"`
	TotalPool   int64    `json:"total_pool"`
	WinningPool int64    `json:"winning_pool"`
	PaidOut     int64    `json:"paid_out"`
	Unclaimed   int64    `json:"unclaimed"`
	Winners     int      `json:"winners"`
	Losers      int      `json:"losers"`
	Settled     int      `json:"settled"`
	Skipped     int      `json:"skipped"`
}

// Summarize totals a full set of settlements. Settled and Skipped are left
// for the caller, which knows which writes actually happened.
func Summarize(m Market, outcome Position, settlements []Settlement) SettlementSummary {
	sum := SettlementSummary{
		MarketID:    m.ID,
		Outcome:     outcome,
		TotalPool:   m.TotalPool(),
		WinningPool: m.PoolFor(outcome),
	}
	for _, s := range settlements {
		if s.Won {
			sum.Winners++
		} else {
			sum.Losers++
		}
		sum.PaidOut += s.Payout
	}
	sum.Unclaimed = sum.TotalPool - sum.PaidOut
	return sum
}
