package domain

import "time"

// LeaderboardEntry holds a user's aggregate prediction record. It is only
// mutated by settlement, once per bet.
type LeaderboardEntry struct {
	UserID             string    `json:"user_id"`
	TotalPredictions   int       `json:"total_predictions"`
	CorrectPredictions int       `json:"correct_predictions"`
	Accuracy           int       `json:"accuracy"`
	TotalProfit        int64     `json:"total_profit"`
	Streak             int       `json:"streak"`
	BestStreak         int       `json:"best_streak"`
	LastUpdated        time.Time `json:"last_updated"`
	Rank               int       `json:"rank,omitempty"`
}

// Apply folds one settled bet into the entry and returns the result. A zero
// entry yields the initial values for a first-time bettor.
func (e LeaderboardEntry) Apply(s Settlement, at time.Time) LeaderboardEntry {
	out := e
	out.UserID = s.UserID
	out.TotalPredictions++
	if s.Won {
		out.CorrectPredictions++
		out.Streak++
		if out.Streak > out.BestStreak {
			out.BestStreak = out.Streak
		}
		out.TotalProfit += s.Payout - s.StakeAmount
	} else {
		out.Streak = 0
		out.TotalProfit -= s.StakeAmount
	}
	out.Accuracy = RoundPercent(int64(out.CorrectPredictions), int64(out.TotalPredictions))
	out.LastUpdated = at
	return out
}
