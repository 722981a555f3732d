package bracket

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riposte-game/riposte/internal/models"
)

// factoryRecorder collects the pairings the engine asks to be played.
type factoryRecorder struct {
	mu       sync.Mutex
	pairings []pairing
}

func (f *factoryRecorder) factory(_ uuid.UUID, matchIndex int, a, b models.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairings = append(f.pairings, pairing{matchIndex, a, b})
}

func (f *factoryRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pairings)
}

func ranked(n int) []models.Participant {
	// Participant i (0-based) has the (i+1)-th highest rating.
	ps := make([]models.Participant, n)
	for i := range ps {
		ps[i] = models.Participant{
			ID:     uuid.New(),
			Name:   string(rune('A' + i)),
			Rating: 2000 - 100*i,
			Human:  true,
		}
	}
	return ps
}

func startTournament(t *testing.T, e *Engine, cap int, players []models.Participant) *Tournament {
	t.Helper()
	tn, err := e.Create("weekly", cap)
	require.NoError(t, err)
	for _, p := range players {
		require.NoError(t, e.Join(tn.ID, p))
	}
	require.NoError(t, e.Start(tn.ID))
	return tn
}

func TestSeedOrderKeepsTopSeedsApart(t *testing.T) {
	assert.Equal(t, []int{1, 2}, seedOrder(2))
	assert.Equal(t, []int{1, 4, 2, 3}, seedOrder(4))
	assert.Equal(t, []int{1, 8, 4, 5, 2, 7, 3, 6}, seedOrder(8))
}

func TestEightPlayerRoundOnePairings(t *testing.T) {
	e := NewEngine()
	rec := &factoryRecorder{}
	e.NewDuel = rec.factory

	players := ranked(8)
	tn := startTournament(t, e, 8, players)

	// Seeds 1v8, 4v5, 2v7, 3v6 in bracket order.
	wantPairs := [4][2]int{{0, 7}, {3, 4}, {1, 6}, {2, 5}}
	for i, want := range wantPairs {
		m := tn.Matches[i]
		assert.Equal(t, players[want[0]].ID, m.Slots[0].ID, "match %d first seat", i)
		assert.Equal(t, players[want[1]].ID, m.Slots[1].ID, "match %d second seat", i)
	}
	assert.Equal(t, 4, rec.count(), "every round-1 pairing should spawn a duel")
	assert.Equal(t, 7, len(tn.Matches))
	assert.Equal(t, -1, tn.Matches[6].NextIndex, "the final advances nowhere")
}

func TestByesAdvanceImmediately(t *testing.T) {
	e := NewEngine()
	rec := &factoryRecorder{}
	e.NewDuel = rec.factory

	players := ranked(5)
	tn := startTournament(t, e, 8, players)

	require.Equal(t, 8, tn.Size, "five registrants still need an eight-slot bracket")

	byes := 0
	for _, m := range tn.Matches[:4] {
		if m.Status == StatusBye {
			byes++
			occupied := 0
			for _, s := range m.Slots {
				if s != nil {
					occupied++
				}
			}
			assert.Equal(t, 1, occupied, "a bye has exactly one occupant")
			assert.NotNil(t, m.Winner(), "a bye's winner is pre-set")
		}
	}
	assert.Equal(t, 3, byes)

	// Seeds 2 and 3 both got byes into the same semifinal, so that duel is
	// playable immediately alongside the 4v5 opener.
	assert.Equal(t, 2, rec.count())
}

func TestAdvanceWinnerIsIdempotent(t *testing.T) {
	e := NewEngine()
	rec := &factoryRecorder{}
	e.NewDuel = rec.factory

	players := ranked(4)
	tn := startTournament(t, e, 4, players)
	winner := tn.Matches[0].Slots[0].ID

	require.NoError(t, e.AdvanceWinner(tn.ID, 0, winner))
	spawnedAfterFirst := rec.count()

	require.NoError(t, e.AdvanceWinner(tn.ID, 0, winner))

	assert.Equal(t, StatusCompleted, tn.Matches[0].Status)
	assert.Equal(t, winner, tn.Matches[0].Winner().ID)
	assert.Equal(t, winner, tn.Matches[2].Slots[0].ID, "winner seated by feeder parity")
	assert.Equal(t, spawnedAfterFirst, rec.count(), "a duplicate advancement spawns nothing")
}

func TestFullTournamentRun(t *testing.T) {
	e := NewEngine()
	rec := &factoryRecorder{}
	e.NewDuel = rec.factory

	players := ranked(4)
	tn := startTournament(t, e, 4, players)
	require.Equal(t, 2, rec.count())

	// Top seed wins its opener, second seed wins the other, top seed takes
	// the final.
	require.NoError(t, e.AdvanceWinner(tn.ID, 0, players[0].ID))
	require.NoError(t, e.AdvanceWinner(tn.ID, 1, players[1].ID))
	require.Equal(t, 3, rec.count(), "the final spawns once both semis decide")

	require.NoError(t, e.AdvanceWinner(tn.ID, 2, players[0].ID))

	assert.Equal(t, TournamentCompleted, tn.Status)
	assert.Equal(t, players[0].ID, tn.WinnerID)
}

func TestAdvanceValidation(t *testing.T) {
	e := NewEngine()
	players := ranked(4)
	tn := startTournament(t, e, 4, players)

	assert.ErrorIs(t, e.AdvanceWinner(uuid.New(), 0, players[0].ID), ErrTournamentNotFound)
	assert.ErrorIs(t, e.AdvanceWinner(tn.ID, 99, players[0].ID), ErrMatchNotFound)
	assert.ErrorIs(t, e.AdvanceWinner(tn.ID, 0, uuid.New()), ErrNotInMatch)
}

func TestRegistrationRules(t *testing.T) {
	e := NewEngine()

	_, err := e.Create("odd", 6)
	assert.ErrorIs(t, err, ErrInvalidSize)

	tn, err := e.Create("weekly", 4)
	require.NoError(t, err)

	players := ranked(5)
	for _, p := range players[:4] {
		require.NoError(t, e.Join(tn.ID, p))
	}
	assert.ErrorIs(t, e.Join(tn.ID, players[4]), ErrTournamentFull)
	assert.ErrorIs(t, e.Join(tn.ID, players[0]), ErrAlreadyJoined)

	require.NoError(t, e.Start(tn.ID))
	assert.ErrorIs(t, e.Join(tn.ID, players[4]), ErrAlreadyStarted)
	assert.ErrorIs(t, e.Start(tn.ID), ErrAlreadyStarted)
}

func TestStartNeedsTwoPlayers(t *testing.T) {
	e := NewEngine()
	tn, err := e.Create("empty", 4)
	require.NoError(t, err)
	require.NoError(t, e.Join(tn.ID, ranked(1)[0]))
	assert.ErrorIs(t, e.Start(tn.ID), ErrTooFewPlayers)
}
