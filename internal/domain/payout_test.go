package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayout(t *testing.T) {
	t.Run("ProportionalShareOfWholePool", func(t *testing.T) {
		assert.Equal(t, int64(133), Payout(100, 300, 400))
	})

	t.Run("SoleWinnerTakesPool", func(t *testing.T) {
		assert.Equal(t, int64(1000), Payout(250, 250, 1000))
	})

	t.Run("EmptyWinningSide", func(t *testing.T) {
		assert.Equal(t, int64(0), Payout(100, 0, 100))
	})

	t.Run("LargeValuesDoNotOverflow", func(t *testing.T) {
		stake := int64(math.MaxInt64 / 4)
		winning := stake * 2
		total := int64(math.MaxInt64 - 1)
		assert.Equal(t, total/2, Payout(stake, winning, total))
	})
}

func TestSettle(t *testing.T) {
	m := Market{ID: "m1", TotalYesStake: 300, TotalNoStake: 100}
	bets := []Bet{
		{ID: "b1", MarketID: "m1", UserID: "u1", Position: PositionYes, StakeAmount: 100},
		{ID: "b2", MarketID: "m1", UserID: "u2", Position: PositionYes, StakeAmount: 100},
		{ID: "b3", MarketID: "m1", UserID: "u3", Position: PositionYes, StakeAmount: 100},
		{ID: "b4", MarketID: "m1", UserID: "u4", Position: PositionNo, StakeAmount: 100},
	}

	settlements := Settle(m, PositionYes, bets)
	require.Len(t, settlements, 4)

	var winnersTotal int64
	for _, s := range settlements {
		if s.Position == PositionYes {
			assert.True(t, s.Won)
			assert.Equal(t, int64(133), s.Payout)
			winnersTotal += s.Payout
		} else {
			assert.False(t, s.Won)
			assert.Zero(t, s.Payout)
		}
	}
	assert.Equal(t, int64(399), winnersTotal)

	sum := Summarize(m, PositionYes, settlements)
	assert.Equal(t, int64(400), sum.TotalPool)
	assert.Equal(t, int64(300), sum.WinningPool)
	assert.Equal(t, int64(399), sum.PaidOut)
	assert.Equal(t, int64(1), sum.Unclaimed)
	assert.Equal(t, 3, sum.Winners)
	assert.Equal(t, 1, sum.Losers)
}

func TestSettle_NobodyOnWinningSide(t *testing.T) {
	m := Market{ID: "m1", TotalYesStake: 500, TotalNoStake: 0}
	bets := []Bet{
		{ID: "b1", MarketID: "m1", UserID: "u1", Position: PositionYes, StakeAmount: 200},
		{ID: "b2", MarketID: "m1", UserID: "u2", Position: PositionYes, StakeAmount: 300},
	}

	settlements := Settle(m, PositionNo, bets)
	for _, s := range settlements {
		assert.False(t, s.Won)
		assert.Zero(t, s.Payout)
	}

	sum := Summarize(m, PositionNo, settlements)
	assert.Equal(t, int64(500), sum.Unclaimed)
	assert.Zero(t, sum.PaidOut)
}

func TestPercentages(t *testing.T) {
	yes, no := Percentages(0, 0)
	assert.Equal(t, 50, yes)
	assert.Equal(t, 50, no)

	yes, no = Percentages(300, 100)
	assert.Equal(t, 75, yes)
	assert.Equal(t, 25, no)

	yes, no = Percentages(1, 2)
	assert.Equal(t, 33, yes)
	assert.Equal(t, 67, no)

	yes, no = Percentages(1, 7)
	assert.Equal(t, 13, yes) // 12.5 rounds half up
	assert.Equal(t, 87, no)
}

func TestPercentages_LargePools(t *testing.T) {
	yes, no := Percentages(1e17, 1e17)
	assert.Equal(t, 50, yes)
	assert.Equal(t, 50, no)

	yes, no = Percentages(math.MaxInt64, math.MaxInt64)
	assert.Equal(t, 50, yes)
	assert.Equal(t, 50, no)

	yes, no = Percentages(math.MaxInt64, 1)
	assert.Equal(t, 100, yes)
	assert.Zero(t, no)

	assert.Equal(t, 75, RoundPercent(3e17, 4e17))
	assert.Equal(t, 100, RoundPercent(math.MaxInt64, math.MaxInt64))
	assert.Zero(t, RoundPercent(5, 0))
}

func TestMarket_CheckStake(t *testing.T) {
	half := int64(math.MaxInt64/2 + 1)
	m := Market{ID: "m1", TotalYesStake: half}

	require.NoError(t, m.CheckStake(math.MaxInt64-half))
	assert.ErrorIs(t, m.CheckStake(half), ErrInvalidStake)
	assert.ErrorIs(t, m.CheckStake(0), ErrInvalidStake)
	assert.ErrorIs(t, m.CheckStake(-1), ErrInvalidStake)

	full := Market{ID: "m2", TotalYesStake: math.MaxInt64}
	assert.ErrorIs(t, full.CheckStake(1), ErrInvalidStake)
}

func TestLeaderboardEntry_Apply(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	win := Settlement{UserID: "u1", Won: true, StakeAmount: 100, Payout: 150}
	loss := Settlement{UserID: "u1", Won: false, StakeAmount: 40}

	var e LeaderboardEntry
	var streaks []int
	for _, s := range []Settlement{win, win, win, loss} {
		e = e.Apply(s, now)
		streaks = append(streaks, e.Streak)
	}

	assert.Equal(t, []int{1, 2, 3, 0}, streaks)
	assert.Equal(t, 3, e.BestStreak)
	assert.Equal(t, 4, e.TotalPredictions)
	assert.Equal(t, 3, e.CorrectPredictions)
	assert.Equal(t, 75, e.Accuracy)
	assert.Equal(t, int64(3*50-40), e.TotalProfit)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, now, e.LastUpdated)
}

func TestLeaderboardEntry_ApplyFirstLoss(t *testing.T) {
	e := LeaderboardEntry{}.Apply(Settlement{UserID: "u9", StakeAmount: 25}, time.Now())
	assert.Equal(t, 1, e.TotalPredictions)
	assert.Equal(t, 0, e.CorrectPredictions)
	assert.Equal(t, 0, e.Accuracy)
	assert.Equal(t, int64(-25), e.TotalProfit)
	assert.Equal(t, 0, e.BestStreak)
}

func TestPlaceBetRequest_Validate(t *testing.T) {
	ok := PlaceBetRequest{MarketID: "m", UserID: "u", Position: PositionNo, StakeAmount: 5, Confidence: 60}
	require.NoError(t, ok.Validate())

	zero := ok
	zero.StakeAmount = 0
	assert.ErrorIs(t, zero.Validate(), ErrInvalidStake)

	badPos := ok
	badPos.Position = "maybe"
	assert.ErrorIs(t, badPos.Validate(), ErrInvalidArgument)

	badConf := ok
	badConf.Confidence = 101
	assert.ErrorIs(t, badConf.Validate(), ErrInvalidArgument)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Trend ")
	require.NoError(t, err)
	assert.Equal(t, CategoryTrend, c)

	_, err = ParseCategory("sports")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMarket_RevisionOrdersSnapshots(t *testing.T) {
	settled := time.Now()
	snapshots := []Market{
		{Status: MarketStatusOpen},
		{Status: MarketStatusOpen, TotalYesStake: 9},
		{Status: MarketStatusOpen, TotalYesStake: 9, TotalNoStake: 1},
		{Status: MarketStatusOpen, TotalYesStake: math.MaxInt64 - 1},
		{Status: MarketStatusResolvedYes, TotalYesStake: 10},
		{Status: MarketStatusResolvedYes, TotalYesStake: 10, SettledAt: &settled},
	}
	for i := 1; i < len(snapshots); i++ {
		assert.Greater(t, snapshots[i].Revision(), snapshots[i-1].Revision(), "snapshot %d", i)
	}
	assert.Equal(t, snapshots[1].Revision(), Market{Status: MarketStatusOpen, TotalNoStake: 9}.Revision())
}
