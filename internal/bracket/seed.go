package bracket

import (
	"sort"

	"github.com/riposte-game/riposte/internal/models"
)

// AllowedSizes are the bracket capacities a tournament may be created with.
var AllowedSizes = [5]int{4, 8, 16, 32, 64}

// sizeFor returns the smallest allowed bracket size holding n registrants.
// Sizing off the actual registrant count (not the nominal cap) keeps every
// round-1 pair owning at least one real participant, so a bye always has
// exactly one occupant.
func sizeFor(n int) (int, bool) {
	for _, s := range AllowedSizes {
		if n <= s {
			return s, true
		}
	}
	return 0, false
}

// seedOrder returns the seed number occupying each bracket position for the
// given size (a power of two). Each layer doubles by emitting s, L-s for
// every seed s of the previous layer, with L = 2*len+1; the result keeps the
// top two seeds in opposite halves so they can only meet in the final.
func seedOrder(size int) []int {
	seq := []int{1, 2}
	for len(seq) < size {
		l := 2*len(seq) + 1
		next := make([]int, 0, 2*len(seq))
		for _, s := range seq {
			next = append(next, s, l-s)
		}
		seq = next
	}
	return seq
}

// seedSlots sorts participants by rating descending and lays them out in
// seed order over size positions. Positions beyond the registrant count stay
// nil and become byes.
func seedSlots(participants []models.Participant, size int) []*models.Participant {
	ranked := make([]models.Participant, len(participants))
	copy(ranked, participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rating > ranked[j].Rating
	})

	slots := make([]*models.Participant, size)
	for pos, seed := range seedOrder(size) {
		if seed <= len(ranked) {
			p := ranked[seed-1]
			slots[pos] = &p
		}
	}
	return slots
}

// buildMatches pairs adjacent slots into round-1 matches and strings the
// later rounds together as an arena of nodes addressed by index. Round-1
// slots are fixed here and never change; round >=2 slots start nil and are
// filled exactly once as feeders complete.
func buildMatches(slots []*models.Participant) []*Match {
	size := len(slots)
	matches := make([]*Match, 0, size-1)

	idx := 0
	roundStart := 0
	for count, round := size/2, 1; count >= 1; count, round = count/2, round+1 {
		for i := 0; i < count; i++ {
			m := &Match{
				Index:      idx,
				Round:      round,
				NextIndex:  -1,
				Status:     StatusPending,
				WinnerSlot: -1,
			}
			if round == 1 {
				m.Slots[0] = slots[2*i]
				m.Slots[1] = slots[2*i+1]
			}
			if count > 1 {
				m.NextIndex = roundStart + count + (idx-roundStart)/2
			}
			matches = append(matches, m)
			idx++
		}
		roundStart += count
	}

	for _, m := range matches {
		if m.Round != 1 {
			continue
		}
		occupied := 0
		for _, s := range m.Slots {
			if s != nil {
				occupied++
			}
		}
		if occupied == 1 {
			m.Status = StatusBye
			if m.Slots[0] != nil {
				m.WinnerSlot = 0
			} else {
				m.WinnerSlot = 1
			}
		}
	}
	return matches
}
