package matchmaker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riposte-game/riposte/internal/game"
	"github.com/riposte-game/riposte/internal/models"
)

func participant(name string, ratingVal int) models.Participant {
	return models.Participant{ID: uuid.New(), Name: name, Rating: ratingVal, Human: true}
}

func waitForQueueLen(t *testing.T, m *Matchmaker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.QueueLen() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue never reached length %d (got %d)", want, m.QueueLen())
}

func TestCompatibleSearchersShareOneDuel(t *testing.T) {
	m := New(game.NewDuelStore())
	alice := participant("alice", 1000)
	bob := participant("bob", 1150) // within the 200-point window

	type result struct {
		id  uuid.UUID
		err error
	}
	aliceDone := make(chan result, 1)
	go func() {
		id, err := m.FindMatch(context.Background(), alice)
		aliceDone <- result{id, err}
	}()
	waitForQueueLen(t, m, 1)

	bobID, err := m.FindMatch(context.Background(), bob)
	require.NoError(t, err)

	aliceRes := <-aliceDone
	require.NoError(t, aliceRes.err)
	assert.Equal(t, bobID, aliceRes.id, "both searchers should land in the same duel")
	assert.Equal(t, 0, m.QueueLen(), "no queue entry should remain for either")

	d, ok := m.Duels.GetDuel(bobID)
	require.True(t, ok)
	assert.GreaterOrEqual(t, d.SeatOf(alice.ID), 0)
	assert.GreaterOrEqual(t, d.SeatOf(bob.ID), 0)
	assert.Equal(t, game.DuelInProgress, d.State)
}

func TestRatingWindowExcludesDistantSearchers(t *testing.T) {
	m := New(game.NewDuelStore())
	m.Timeout = 100 * time.Millisecond

	low := participant("low", 1000)
	high := participant("high", 1300)

	lowDone := make(chan error, 1)
	go func() {
		_, err := m.FindMatch(context.Background(), low)
		lowDone <- err
	}()
	waitForQueueLen(t, m, 1)

	_, err := m.FindMatch(context.Background(), high)
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.ErrorIs(t, <-lowDone, ErrQueueTimeout)
	assert.Equal(t, 0, m.QueueLen(), "expired entries must be removed")
}

func TestTimeoutLeavesNoEntry(t *testing.T) {
	m := New(game.NewDuelStore())
	m.Timeout = 50 * time.Millisecond

	_, err := m.FindMatch(context.Background(), participant("loner", 1000))
	assert.ErrorIs(t, err, ErrQueueTimeout)
	assert.Equal(t, 0, m.QueueLen())
}

func TestReentryReturnsExistingSeat(t *testing.T) {
	store := game.NewDuelStore()
	m := New(store)

	alice := participant("alice", 1000)
	d := game.NewDuel(alice, participant("bob", 1000))
	store.AddDuel(d)
	d.Begin()

	id, err := m.FindMatch(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, d.ID, id)
	assert.Equal(t, 0, m.QueueLen(), "a seated participant never enqueues")
}

func TestLeavingQueueCancelsWait(t *testing.T) {
	m := New(game.NewDuelStore())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := m.FindMatch(ctx, participant("alice", 1000))
		done <- err
	}()
	waitForQueueLen(t, m, 1)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	waitForQueueLen(t, m, 0)
}

func TestStaleEntryClearedOnNewSearch(t *testing.T) {
	m := New(game.NewDuelStore())
	m.Timeout = 150 * time.Millisecond
	alice := participant("alice", 1000)

	first := make(chan error, 1)
	go func() {
		_, err := m.FindMatch(context.Background(), alice)
		first <- err
	}()
	waitForQueueLen(t, m, 1)

	second := make(chan error, 1)
	go func() {
		_, err := m.FindMatch(context.Background(), alice)
		second <- err
	}()

	// The second search replaces the first entry rather than duplicating it,
	// and the first waiter is told to stand down.
	assert.ErrorIs(t, <-first, ErrSearchReplaced)
	assert.Equal(t, 1, m.QueueLen())
	assert.ErrorIs(t, <-second, ErrQueueTimeout)
	assert.Equal(t, 0, m.QueueLen())
}

func TestValidationRejectedBeforeMutation(t *testing.T) {
	m := New(game.NewDuelStore())

	_, err := m.FindMatch(context.Background(), models.Participant{Name: "x", Rating: 1000})
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	_, err = m.FindMatch(context.Background(), models.Participant{ID: uuid.New(), Rating: 1000})
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	_, err = m.FindBotMatch(models.Participant{ID: uuid.New(), Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidParticipant)

	assert.Equal(t, 0, m.QueueLen())
}

func TestBotMatchSeatsImmediately(t *testing.T) {
	m := New(game.NewDuelStore())
	alice := participant("alice", 1000)

	id, err := m.FindBotMatch(alice)
	require.NoError(t, err)

	d, ok := m.Duels.GetDuel(id)
	require.True(t, ok)
	assert.Equal(t, game.DuelInProgress, d.State)

	seat := d.SeatOf(alice.ID)
	require.GreaterOrEqual(t, seat, 0)
	other := d.Seats[1-seat]
	assert.False(t, other.Participant.Human)
	assert.Equal(t, BotName, other.Participant.Name)
	assert.Equal(t, alice.Rating, other.Participant.Rating)
}
