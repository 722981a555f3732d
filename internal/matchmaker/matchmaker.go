// Package matchmaker pairs searching participants by rating proximity and
// constructs duels. All pairing decisions are serialized under one mutex:
// removing a queue entry and creating the duel happen as one atomic unit, so
// no observer can see the entry gone without the duel existing.
package matchmaker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riposte-game/riposte/internal/cache"
	"github.com/riposte-game/riposte/internal/game"
	"github.com/riposte-game/riposte/internal/metrics"
	"github.com/riposte-game/riposte/internal/models"
)

const (
	// QueueTimeout bounds how long a searcher waits for an opponent.
	QueueTimeout = 90 * time.Second
	// RatingWindow is the maximum rating gap between paired searchers.
	RatingWindow = 200

	// BotName is the display name of the built-in opponent.
	BotName = "computer"
)

var (
	// ErrQueueTimeout reports a wait that expired unmatched. It is a normal
	// outcome, not a failure.
	ErrQueueTimeout = errors.New("no opponent found before the queue timeout")

	ErrInvalidParticipant = errors.New("participant id, name and rating are required")

	// ErrSearchReplaced reports a wait abandoned because the same
	// participant started a newer search.
	ErrSearchReplaced = errors.New("search superseded by a newer request")
)

// queueEntry is one waiting matchmaking request. The done channel is the
// "entry disappeared, you got matched" signal: the pairing searcher sends
// the duel id on it while still holding the matchmaker lock.
type queueEntry struct {
	participant models.Participant
	enqueuedAt  time.Time
	done        chan uuid.UUID
}

// Matchmaker owns the waiting queue. Exactly one entry exists per waiting
// participant; a stale entry is cleared before any new search begins.
type Matchmaker struct {
	// Duels is where constructed sessions are registered and looked up.
	Duels *game.DuelStore

	// OnDuelCreated is called on every freshly built duel before it begins,
	// so the owner can attach the post-game hook and broadcast plumbing.
	OnDuelCreated func(d *game.Duel)

	// Metrics is optional.
	Metrics *metrics.Service

	// Timeout bounds the wait-for-pairing step. Defaults to QueueTimeout.
	Timeout time.Duration

	mu    sync.Mutex
	queue map[uuid.UUID]*queueEntry
}

func New(duels *game.DuelStore) *Matchmaker {
	return &Matchmaker{
		Duels:   duels,
		Timeout: QueueTimeout,
		queue:   make(map[uuid.UUID]*queueEntry),
	}
}

// QueueLen reports the number of waiting entries.
func (m *Matchmaker) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// FindMatch finds or waits for an opponent within RatingWindow of p. It
// returns the duel id of an existing live seat immediately (idempotent
// re-entry), of a fresh pairing, or of a pairing made by the opposing
// searcher while this one waited. The wait is bounded by QueueTimeout and
// cancelled by ctx (the participant leaving the queue).
func (m *Matchmaker) FindMatch(ctx context.Context, p models.Participant) (uuid.UUID, error) {
	if p.ID == uuid.Nil || p.Name == "" || p.Rating <= 0 {
		return uuid.Nil, ErrInvalidParticipant
	}

	if d, ok := m.Duels.FindByParticipant(p.ID); ok {
		return d.ID, nil
	}

	m.mu.Lock()

	// Defensive cleanup of a prior abandoned search. Closing its channel
	// wakes the old waiter, which sees the close and stands down.
	if old, ok := m.queue[p.ID]; ok {
		delete(m.queue, p.ID)
		close(old.done)
		cache.Drop(ctx, cache.NamespaceQueue, p.ID)
	}

	for id, e := range m.queue {
		if id == p.ID {
			continue
		}
		if diff := e.participant.Rating - p.Rating; diff > RatingWindow || diff < -RatingWindow {
			continue
		}
		// Last-moment check: the candidate may already have been seated by a
		// pairing this searcher hasn't observed yet.
		if _, seated := m.Duels.FindByParticipant(id); seated {
			continue
		}

		// Pair: construct and register the session first, then remove the
		// entry and signal its owner, all before releasing the lock.
		d := m.buildDuel(e.participant, p)
		delete(m.queue, id)
		e.done <- d.ID
		m.mu.Unlock()

		cache.Drop(ctx, cache.NamespaceQueue, id)
		if m.Metrics != nil {
			m.Metrics.MatchesPaired.Inc()
		}
		log.Printf("matchmaker: paired %s with %s into duel %s", p.Name, e.participant.Name, d.ID)

		d.Begin()
		return d.ID, nil
	}

	entry := &queueEntry{
		participant: p,
		enqueuedAt:  time.Now(),
		done:        make(chan uuid.UUID, 1),
	}
	m.queue[p.ID] = entry
	m.mu.Unlock()

	cache.Mirror(ctx, cache.NamespaceQueue, p.ID, cache.QueueEntryRecord{
		ParticipantID: p.ID,
		Name:          p.Name,
		Rating:        p.Rating,
		Human:         p.Human,
		EnqueuedAt:    entry.enqueuedAt.Unix(),
	})

	timer := time.NewTimer(m.Timeout)
	defer timer.Stop()

	select {
	case duelID, ok := <-entry.done:
		if !ok {
			return uuid.Nil, ErrSearchReplaced
		}
		// The pairing searcher removed this entry and created the session
		// before signalling, so the duel is already queryable.
		return duelID, nil

	case <-timer.C:
		if id, matched := m.withdraw(ctx, p.ID, entry); matched {
			return id, nil
		}
		if m.Metrics != nil {
			m.Metrics.QueueTimeouts.Inc()
		}
		return uuid.Nil, ErrQueueTimeout

	case <-ctx.Done():
		if id, matched := m.withdraw(ctx, p.ID, entry); matched {
			return id, nil
		}
		return uuid.Nil, ctx.Err()
	}
}

// withdraw removes the caller's own queue entry. If the entry is already
// gone it was removed either by a pairing (whose duel id sits in the
// buffered done channel) or by a superseding search (channel closed).
func (m *Matchmaker) withdraw(ctx context.Context, id uuid.UUID, entry *queueEntry) (uuid.UUID, bool) {
	m.mu.Lock()
	if current, still := m.queue[id]; still && current == entry {
		delete(m.queue, id)
		m.mu.Unlock()
		cache.Drop(ctx, cache.NamespaceQueue, id)
		return uuid.Nil, false
	}
	m.mu.Unlock()
	duelID, ok := <-entry.done
	return duelID, ok
}

// FindBotMatch seats p against the built-in predictor opponent immediately.
// The bot mirrors the caller's rating so the pairing is nominally fair.
func (m *Matchmaker) FindBotMatch(p models.Participant) (uuid.UUID, error) {
	if p.ID == uuid.Nil || p.Name == "" || p.Rating <= 0 {
		return uuid.Nil, ErrInvalidParticipant
	}
	if d, ok := m.Duels.FindByParticipant(p.ID); ok {
		return d.ID, nil
	}

	bot := models.Participant{ID: uuid.New(), Name: BotName, Rating: p.Rating, Human: false}

	m.mu.Lock()
	d := m.buildDuel(p, bot)
	m.mu.Unlock()

	d.Begin()
	return d.ID, nil
}

// buildDuel constructs, configures and registers a session. Caller holds mu,
// which is the single-writer serialization point for session creation.
func (m *Matchmaker) buildDuel(a, b models.Participant) *game.Duel {
	d := game.NewDuel(a, b)
	if m.OnDuelCreated != nil {
		m.OnDuelCreated(d)
	}
	m.Duels.AddDuel(d)
	if m.Metrics != nil {
		m.Metrics.DuelsStarted.Inc()
	}
	return d
}
