package rating

import "math"

const (
	// K is the step size: the largest swing a single duel can produce
	// before clamping.
	K = 32.0
	// D is the distribution constant of the expected-score curve. A larger D
	// flattens the curve so rating gaps matter less.
	D = 400.0
	// MinDelta floors the magnitude of any adjustment so lopsided pairings
	// still move the needle.
	MinDelta = 1
	// MaxDelta caps the magnitude of any adjustment against runaway swings.
	MaxDelta = 50
	// DefaultRating is where a fresh participant starts.
	DefaultRating = 1000
)

// NextRating computes a participant's rating after a finished ranked duel.
// It is pure and total: both sides of a duel call it independently with their
// pre-duel ratings, and the two calls are order-insensitive.
//
// Expected scores follow the standard logistic form
//
//	expectedWin = 10^(w/D) / (10^(w/D) + 10^(l/D))
//
// where w and l are the winner's and loser's pre-duel ratings. The winner
// gains round(K*(1-expectedWin)); the loser takes round(K*(0-expectedLoss)).
func NextRating(playerRating, opponentRating int, won bool) int {
	winner, loser := playerRating, opponentRating
	if !won {
		winner, loser = opponentRating, playerRating
	}

	qw := math.Pow(10, float64(winner)/D)
	ql := math.Pow(10, float64(loser)/D)
	expectedWin := qw / (qw + ql)
	expectedLoss := 1 - expectedWin

	var delta int
	if won {
		delta = clampDelta(int(math.Round(K * (1 - expectedWin))))
	} else {
		delta = -clampDelta(-int(math.Round(K * (0 - expectedLoss))))
	}
	return playerRating + delta
}

// clampDelta bounds a non-negative delta magnitude to [MinDelta, MaxDelta].
func clampDelta(d int) int {
	if d < MinDelta {
		return MinDelta
	}
	if d > MaxDelta {
		return MaxDelta
	}
	return d
}
