// Package bracket seeds single-elimination tournaments, builds their match
// trees and advances winners until one participant remains. Each filled
// pairing is handed to a duel factory; finished duels report back through
// AdvanceWinner.
package bracket

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riposte-game/riposte/internal/metrics"
	"github.com/riposte-game/riposte/internal/models"
)

// Status is the lifecycle state of one bracket match.
type Status string

const (
	StatusPending   Status = "pending"
	StatusBye       Status = "bye"
	StatusCompleted Status = "completed"
)

// TournamentStatus is the lifecycle state of a whole tournament.
type TournamentStatus string

const (
	TournamentRegistering TournamentStatus = "registering"
	TournamentInProgress  TournamentStatus = "in_progress"
	TournamentCompleted   TournamentStatus = "completed"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("bracket match not found")
	ErrInvalidSize        = errors.New("tournament size must be one of 4, 8, 16, 32, 64")
	ErrAlreadyStarted     = errors.New("tournament registration is closed")
	ErrNotStarted         = errors.New("tournament has not started")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrAlreadyJoined      = errors.New("participant already registered")
	ErrTooFewPlayers      = errors.New("at least two participants are required")
	ErrNotInMatch         = errors.New("winner is not a participant of this match")
)

// Match is one node of the bracket arena. Nodes address each other by index
// into the tournament's Matches slice; the final is the node with no
// NextIndex.
type Match struct {
	Index      int                     `json:"index"`
	Round      int                     `json:"round"`
	Slots      [2]*models.Participant  `json:"slots"`
	NextIndex  int                     `json:"nextIndex"` // -1 for the final
	Status     Status                  `json:"status"`
	WinnerSlot int                     `json:"winnerSlot"` // -1 until decided
}

// Winner returns the winning participant of a decided match.
func (m *Match) Winner() *models.Participant {
	if m.WinnerSlot < 0 {
		return nil
	}
	return m.Slots[m.WinnerSlot]
}

// Tournament is one single-elimination event. Mu guards all mutation after
// creation; the arena layout itself (indices, next pointers, round-1 slots)
// is fixed at start time.
type Tournament struct {
	ID           uuid.UUID            `json:"id"`
	Name         string               `json:"name"`
	Status       TournamentStatus     `json:"status"`
	Cap          int                  `json:"cap"`
	Size         int                  `json:"size"`
	Participants []models.Participant `json:"participants"`
	Matches      []*Match             `json:"matches"`
	WinnerID     uuid.UUID            `json:"winnerId,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`

	Mu sync.Mutex `json:"-"`
}

// DuelFactory constructs a tournament-linked duel for a filled pairing. It
// runs outside the tournament lock.
type DuelFactory func(tournamentID uuid.UUID, matchIndex int, a, b models.Participant)

// pairing is a decided-under-lock duel creation, executed after unlock.
type pairing struct {
	matchIndex int
	a, b       models.Participant
}

// Engine holds all live tournaments in memory.
type Engine struct {
	// NewDuel is called for every pairing whose both seats are known.
	NewDuel DuelFactory

	// Metrics is optional.
	Metrics *metrics.Service

	mu          sync.Mutex
	tournaments map[uuid.UUID]*Tournament
}

func NewEngine() *Engine {
	return &Engine{
		tournaments: make(map[uuid.UUID]*Tournament),
	}
}

// Create opens a tournament for registration with one of the allowed caps.
func (e *Engine) Create(name string, cap int) (*Tournament, error) {
	valid := false
	for _, s := range AllowedSizes {
		if cap == s {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrInvalidSize
	}

	id, _ := uuid.NewRandom()
	t := &Tournament{
		ID:        id,
		Name:      name,
		Status:    TournamentRegistering,
		Cap:       cap,
		CreatedAt: time.Now(),
	}
	e.mu.Lock()
	e.tournaments[id] = t
	e.mu.Unlock()
	return t, nil
}

// Get returns a tournament by id.
func (e *Engine) Get(id uuid.UUID) (*Tournament, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tournaments[id]
	return t, ok
}

// Delete removes a tournament from memory, typically after completion has
// been fully processed.
func (e *Engine) Delete(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tournaments, id)
}

// ReapCompleted removes completed tournaments older than the given age.
func (e *Engine) ReapCompleted(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, t := range e.tournaments {
		t.Mu.Lock()
		stale := t.Status == TournamentCompleted && t.CreatedAt.Before(cutoff)
		t.Mu.Unlock()
		if stale {
			delete(e.tournaments, id)
			n++
		}
	}
	return n
}

// Join registers a participant while the tournament is open.
func (e *Engine) Join(id uuid.UUID, p models.Participant) error {
	t, ok := e.Get(id)
	if !ok {
		return ErrTournamentNotFound
	}
	t.Mu.Lock()
	defer t.Mu.Unlock()

	if t.Status != TournamentRegistering {
		return ErrAlreadyStarted
	}
	if len(t.Participants) >= t.Cap {
		return ErrTournamentFull
	}
	for _, reg := range t.Participants {
		if reg.ID == p.ID {
			return ErrAlreadyJoined
		}
	}
	t.Participants = append(t.Participants, p)
	return nil
}

// Start closes registration, seeds the bracket over the smallest allowed
// size holding the registrants, grants byes and spawns every round-1 duel
// whose both seats are occupied.
func (e *Engine) Start(id uuid.UUID) error {
	t, ok := e.Get(id)
	if !ok {
		return ErrTournamentNotFound
	}

	t.Mu.Lock()
	if t.Status != TournamentRegistering {
		t.Mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(t.Participants) < 2 {
		t.Mu.Unlock()
		return ErrTooFewPlayers
	}
	size, ok := sizeFor(len(t.Participants))
	if !ok {
		t.Mu.Unlock()
		return ErrInvalidSize
	}

	t.Size = size
	t.Matches = buildMatches(seedSlots(t.Participants, size))
	t.Status = TournamentInProgress

	var pairings []pairing
	for _, m := range t.Matches {
		if m.Round != 1 {
			break
		}
		switch {
		case m.Status == StatusBye:
			if e.Metrics != nil {
				e.Metrics.BracketByes.Inc()
			}
			pairings = append(pairings, e.propagateLocked(t, m)...)
		case m.Slots[0] != nil && m.Slots[1] != nil:
			pairings = append(pairings, pairing{m.Index, *m.Slots[0], *m.Slots[1]})
		}
	}
	t.Mu.Unlock()

	e.spawn(t.ID, pairings)
	log.Printf("bracket: tournament %s started with %d players over %d slots", t.ID, len(t.Participants), size)
	return nil
}

// AdvanceWinner records the winner of a bracket match and feeds it forward.
// Calling it again for an already-decided match leaves the bracket
// unchanged, which absorbs duplicate post-game hooks.
func (e *Engine) AdvanceWinner(tournamentID uuid.UUID, matchIndex int, winnerID uuid.UUID) error {
	t, ok := e.Get(tournamentID)
	if !ok {
		return ErrTournamentNotFound
	}

	t.Mu.Lock()
	if t.Status == TournamentRegistering {
		t.Mu.Unlock()
		return ErrNotStarted
	}
	if matchIndex < 0 || matchIndex >= len(t.Matches) {
		t.Mu.Unlock()
		return ErrMatchNotFound
	}
	m := t.Matches[matchIndex]
	if m.WinnerSlot >= 0 {
		t.Mu.Unlock()
		return nil
	}

	slot := -1
	for i, s := range m.Slots {
		if s != nil && s.ID == winnerID {
			slot = i
			break
		}
	}
	if slot < 0 {
		t.Mu.Unlock()
		return ErrNotInMatch
	}

	m.WinnerSlot = slot
	m.Status = StatusCompleted
	pairings := e.propagateLocked(t, m)
	t.Mu.Unlock()

	e.spawn(tournamentID, pairings)
	return nil
}

// propagateLocked feeds a decided match's winner into its next match. The
// winner lands in the first or second seat according to the parity of the
// completed match's index. Returns any pairing that became playable. Caller
// holds t.Mu.
func (e *Engine) propagateLocked(t *Tournament, m *Match) []pairing {
	winner := m.Winner()
	if winner == nil {
		return nil
	}

	if m.NextIndex < 0 {
		// The final: crown the champion.
		t.Status = TournamentCompleted
		t.WinnerID = winner.ID
		if e.Metrics != nil {
			e.Metrics.TournamentsCompleted.Inc()
		}
		log.Printf("bracket: tournament %s won by %s", t.ID, winner.Name)
		return nil
	}

	next := t.Matches[m.NextIndex]
	next.Slots[m.Index%2] = winner
	if next.Slots[0] != nil && next.Slots[1] != nil {
		return []pairing{{next.Index, *next.Slots[0], *next.Slots[1]}}
	}
	return nil
}

// spawn invokes the duel factory outside any lock.
func (e *Engine) spawn(tournamentID uuid.UUID, pairings []pairing) {
	if e.NewDuel == nil {
		return
	}
	for _, p := range pairings {
		e.NewDuel(tournamentID, p.matchIndex, p.a, p.b)
	}
}
