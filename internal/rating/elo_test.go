package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqualRatingsSplitEvenly(t *testing.T) {
	winner := NextRating(1000, 1000, true)
	loser := NextRating(1000, 1000, false)

	assert.Equal(t, 1016, winner, "equal ratings: winner should gain K/2")
	assert.Equal(t, 984, loser, "equal ratings: loser should drop K/2")
	assert.Equal(t, winner-1000, 1000-loser, "deltas should be equal and opposite")
}

func TestFavoriteGainsLessThanUnderdog(t *testing.T) {
	favoriteGain := NextRating(1400, 1000, true) - 1400
	underdogGain := NextRating(1000, 1400, true) - 1000

	assert.Less(t, favoriteGain, underdogGain)
	assert.GreaterOrEqual(t, favoriteGain, MinDelta, "clamp should keep the favorite's gain above zero")
}

func TestLossIsNegative(t *testing.T) {
	after := NextRating(1200, 1100, false)
	assert.Less(t, after, 1200)
}

func TestClampBoundsDelta(t *testing.T) {
	// A massive favorite losing would otherwise swing close to K.
	after := NextRating(400, 2400, false)
	assert.GreaterOrEqual(t, 400-after, MinDelta)
	assert.LessOrEqual(t, 400-after, MaxDelta)

	// A massive favorite winning gains the floor, never zero.
	gain := NextRating(2400, 400, true) - 2400
	assert.Equal(t, MinDelta, gain)
}

func TestOrderInsensitive(t *testing.T) {
	// Both calls use pre-duel ratings, so computing them in either order
	// yields the same pair of results.
	w1 := NextRating(1250, 1180, true)
	l1 := NextRating(1180, 1250, false)
	l2 := NextRating(1180, 1250, false)
	w2 := NextRating(1250, 1180, true)

	assert.Equal(t, w1, w2)
	assert.Equal(t, l1, l2)
}
