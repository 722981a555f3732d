package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeatsAndCedesAreInverse(t *testing.T) {
	for _, m := range Moves {
		assert.Equal(t, m, Cedes(Beats(m)), "%s", m)
		assert.Equal(t, m, Beats(Cedes(m)), "%s", m)
		assert.NotEqual(t, m, Beats(m))
		assert.Equal(t, 1, Score(Beats(m), m))
		assert.Equal(t, -1, Score(Cedes(m), m))
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0, Score(MoveRock, MoveRock))
	assert.Equal(t, 1, Score(MoveRock, MoveScissors))
	assert.Equal(t, -1, Score(MoveRock, MovePaper))
	assert.Equal(t, 1, Score(MovePaper, MoveRock))
	assert.Equal(t, 1, Score(MoveScissors, MovePaper))

	// A missing move loses to any present move; two missing moves draw.
	assert.Equal(t, 1, Score(MoveRock, MoveNone))
	assert.Equal(t, -1, Score(MoveNone, MoveScissors))
	assert.Equal(t, 0, Score(MoveNone, MoveNone))
}

func TestValid(t *testing.T) {
	for _, m := range Moves {
		assert.True(t, m.Valid())
	}
	assert.False(t, MoveNone.Valid())
	assert.False(t, Move("lizard").Valid())
}
