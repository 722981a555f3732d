package models

// Move is one of the three throwable choices in a duel round.
type Move string

const (
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"

	// MoveNone marks a seat that never submitted before the round deadline.
	MoveNone Move = ""
)

// Moves lists the playable alphabet in index order. The predictor relies on
// this ordering for its pattern encoding.
var Moves = [3]Move{MoveRock, MovePaper, MoveScissors}

var beatsTable = map[Move]Move{
	MoveRock:     MoveScissors, // rock beats scissors
	MovePaper:    MoveRock,
	MoveScissors: MovePaper,
}

var losesTable = map[Move]Move{
	MoveScissors: MoveRock,
	MoveRock:     MovePaper,
	MovePaper:    MoveScissors,
}

// Valid reports whether m is a playable move (MoveNone is not).
func (m Move) Valid() bool {
	_, ok := beatsTable[m]
	return ok
}

// Index returns the position of m in Moves, or -1 for MoveNone.
func (m Move) Index() int {
	for i, v := range Moves {
		if v == m {
			return i
		}
	}
	return -1
}

// Beats returns the move that defeats m, e.g. Beats(rock) == paper.
func Beats(m Move) Move {
	return losesTable[m]
}

// Cedes returns the move that m defeats, e.g. Cedes(rock) == scissors.
func Cedes(m Move) Move {
	return beatsTable[m]
}

// Score compares a against b from a's perspective: +1 win, 0 draw, -1 loss.
// A missing move loses to any present move; two missing moves draw.
func Score(a, b Move) int {
	switch {
	case a == b:
		return 0
	case a == MoveNone:
		return -1
	case b == MoveNone:
		return 1
	case beatsTable[a] == b:
		return 1
	default:
		return -1
	}
}
