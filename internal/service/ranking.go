package service

import (
	"math"
	"time"

	"numduel/internal/model"
)

// ScoreFunc ranks a league member. It reports the score and whether the
// member is ranked at all; members with too few matches stay unranked.
// The exact weighting is a heuristic, so it is pluggable rather than a
// contract of the league table.
type ScoreFunc func(member model.LeagueMember, now time.Time) (int, bool)

// DefaultScore is the standard ranking formula:
//
//	base       = winRate * 1000
//	efficiency = max(0, (15 - avgGuessesInWins) / 15)
//	decay      = 1 while the last match is at most 3 days old, then
//	             falling 0.03/day, floored at 0.5
//	score      = round(base * (1 + efficiency) * decay), clamped to 0..2000
//
// Members with fewer than 3 total matches are unranked.
func DefaultScore(m model.LeagueMember, now time.Time) (int, bool) {
	total := m.Wins + m.Losses
	if total < 3 {
		return 0, false
	}

	base := float64(m.Wins) / float64(total) * 1000

	avgGuesses := 15.0
	if m.Wins > 0 {
		avgGuesses = float64(m.TotalGuessesInWins) / float64(m.Wins)
	}
	efficiency := math.Max(0, (15-avgGuesses)/15)

	days := float64(now.UnixMilli()-m.LastMatchAt) / float64(24*time.Hour.Milliseconds())
	decay := 1.0
	if days > 3 {
		decay = math.Max(0.5, 1-(days-3)*0.03)
	}

	score := int(math.Round(base * (1 + efficiency) * decay))
	if score < 0 {
		score = 0
	}
	if score > 2000 {
		score = 2000
	}
	return score, true
}
