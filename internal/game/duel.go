// internal/game/duel.go
package game

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riposte-game/riposte/internal/models"
	"github.com/riposte-game/riposte/internal/predictor"
)

const (
	// WinsRequired is the score a seat must reach to finish a duel.
	WinsRequired = 4
	// DefaultRoundTimeout is how long a round stays open before it
	// auto-resolves with whatever moves arrived.
	DefaultRoundTimeout = 30 * time.Second
)

// DuelState is the lifecycle state of a duel.
type DuelState string

const (
	DuelWaiting    DuelState = "waiting"
	DuelInProgress DuelState = "in_progress"
	DuelFinished   DuelState = "finished"
	DuelCancelled  DuelState = "cancelled"
)

// Terminal reports whether s admits no further mutation.
func (s DuelState) Terminal() bool {
	return s == DuelFinished || s == DuelCancelled
}

var (
	ErrDuelNotFound     = errors.New("duel not found")
	ErrDuelNotActive    = errors.New("duel is not accepting moves")
	ErrNotSeated        = errors.New("participant is not seated in this duel")
	ErrInvalidMove      = errors.New("invalid move")
	ErrAlreadySubmitted = errors.New("move already submitted for this round")
)

// DuelEventType tags events broadcast to duel spectators and seats.
type DuelEventType string

const (
	EventRoundStart    DuelEventType = "round_start"
	EventMoveSubmitted DuelEventType = "move_submitted"
	EventRoundResult   DuelEventType = "round_result"
	EventDuelEnd       DuelEventType = "duel_end"
)

// DuelEvent is the broadcast payload for duel state changes. Moves only
// appear on round_result; move_submitted deliberately carries just the seat.
type DuelEvent struct {
	Type     DuelEventType   `json:"type"`
	DuelID   uuid.UUID       `json:"duelId"`
	Round    int             `json:"round,omitempty"`
	Deadline int64           `json:"deadline,omitempty"`
	Seat     *int            `json:"seat,omitempty"`
	Moves    []models.Move   `json:"moves,omitempty"`
	Scores   [2]int          `json:"scores"`
	Winner   *int            `json:"winner,omitempty"`
	State    DuelState       `json:"state"`
	Names    []string        `json:"names,omitempty"`
}

// Seat is one side of a duel.
type Seat struct {
	Participant models.Participant `json:"participant"`
	Score       int                `json:"score"`
	Choice      models.Move        `json:"-"`
	Submitted   bool               `json:"submitted"`
}

// RoundRecord is one resolved round in the duel history.
type RoundRecord struct {
	Round      int            `json:"round"`
	Moves      [2]models.Move `json:"moves"`
	WinnerSeat int            `json:"winnerSeat"` // -1 on a draw
}

// SeatSummary is a seat's slice of a duel Summary.
type SeatSummary struct {
	Participant  models.Participant
	Score        int
	ChoiceCounts map[models.Move]int
}

// Summary is an immutable snapshot of a terminal duel handed to the
// post-game hook. It is built under the duel lock so the hook can read it
// freely.
type Summary struct {
	ID           uuid.UUID
	State        DuelState
	Seats        [2]SeatSummary
	Rounds       int
	History      []RoundRecord
	WinnerSeat   int // -1 when cancelled
	TournamentID uuid.UUID
	BracketMatch int
	CreatedAt    time.Time
	FinishedAt   time.Time
}

// OnFinishFunc handles a duel that reached a terminal state: ranked duels go
// to persistence and the rating engine, tournament duels advance the bracket.
type OnFinishFunc func(sum Summary)

// Duel is the in-memory state machine for one best-of-N contest. All
// transitions happen under Mu; the round counter doubles as the idempotency
// guard, so a round resolves at most once no matter how many timers or
// submissions race to trigger it.
type Duel struct {
	ID    uuid.UUID
	State DuelState
	Seats [2]*Seat

	Round          int
	History        []RoundRecord
	CreatedAt      time.Time
	RoundStartedAt time.Time
	RoundTimeout   time.Duration
	WinnerSeat     int

	// Tournament linkage; TournamentID is uuid.Nil for quick-play duels.
	TournamentID uuid.UUID
	BracketMatch int

	Mu sync.Mutex

	roundTimer *time.Timer
	bot        *predictor.Predictor
	botSeat    int

	// BroadcastFn sends events to connected clients. If nil, no broadcast.
	BroadcastFn func(ev DuelEvent)

	// OnFinish is invoked exactly once when the duel turns terminal.
	OnFinish OnFinishFunc

	finished bool
}

// NewDuel builds a duel between two participants in the Waiting state. A
// non-human participant gets a fresh predictor for the session.
func NewDuel(a, b models.Participant) *Duel {
	id, _ := uuid.NewRandom()
	d := &Duel{
		ID:           id,
		State:        DuelWaiting,
		Seats:        [2]*Seat{{Participant: a}, {Participant: b}},
		Round:        1,
		CreatedAt:    time.Now(),
		RoundTimeout: DefaultRoundTimeout,
		WinnerSeat:   -1,
		BracketMatch: -1,
		botSeat:      -1,
	}
	for i, s := range d.Seats {
		if !s.Participant.Human {
			d.bot = predictor.New()
			d.botSeat = i
			break
		}
	}
	return d
}

// Begin transitions Waiting -> InProgress and opens round 1. Quick-play
// duels call this immediately at creation; tournament duels when the pairing
// fills.
func (d *Duel) Begin() {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	if d.State != DuelWaiting {
		return
	}
	d.State = DuelInProgress
	d.startRoundLocked()
}

// SeatOf returns the seat index of a participant, or -1.
func (d *Duel) SeatOf(participantID uuid.UUID) int {
	for i, s := range d.Seats {
		if s.Participant.ID == participantID {
			return i
		}
	}
	return -1
}

// SubmitMove records a seat's choice for the active round. When the second
// choice lands the round resolves immediately.
func (d *Duel) SubmitMove(participantID uuid.UUID, m models.Move) error {
	if !m.Valid() {
		return ErrInvalidMove
	}
	d.Mu.Lock()
	defer d.Mu.Unlock()

	if d.State != DuelInProgress {
		return ErrDuelNotActive
	}
	idx := d.SeatOf(participantID)
	if idx < 0 {
		return ErrNotSeated
	}
	seat := d.Seats[idx]
	if seat.Submitted {
		return ErrAlreadySubmitted
	}
	seat.Choice = m
	seat.Submitted = true

	d.broadcastLocked(DuelEvent{
		Type:   EventMoveSubmitted,
		DuelID: d.ID,
		Round:  d.Round,
		Seat:   &idx,
		Scores: d.scoresLocked(),
		State:  d.State,
	})

	if d.Seats[0].Submitted && d.Seats[1].Submitted {
		d.resolveRoundLocked(d.Round)
	}
	return nil
}

// startRoundLocked anchors the deadline, arms the round timer and lets a bot
// seat play its predicted move up front. Caller holds Mu.
func (d *Duel) startRoundLocked() {
	d.RoundStartedAt = time.Now()
	round := d.Round
	d.roundTimer = time.AfterFunc(d.RoundTimeout, func() {
		d.handleDeadline(round)
	})

	if d.botSeat >= 0 {
		seat := d.Seats[d.botSeat]
		seat.Choice = d.bot.NextMove()
		seat.Submitted = true
	}

	d.broadcastLocked(DuelEvent{
		Type:     EventRoundStart,
		DuelID:   d.ID,
		Round:    d.Round,
		Deadline: d.RoundStartedAt.Add(d.RoundTimeout).Unix(),
		Scores:   d.scoresLocked(),
		State:    d.State,
		Names:    []string{d.Seats[0].Participant.Name, d.Seats[1].Participant.Name},
	})
}

// handleDeadline fires when a round timer elapses. A stale timer (round
// already resolved, or duel terminal) is a no-op.
func (d *Duel) handleDeadline(round int) {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	if d.State != DuelInProgress || round != d.Round {
		return
	}
	d.resolveRoundLocked(round)
}

// resolveRoundLocked applies the round outcome. The round-number check makes
// a second concurrent attempt on an already-resolved round a no-op, which is
// the load-bearing "exactly one resolution per round" guarantee. Caller
// holds Mu.
func (d *Duel) resolveRoundLocked(round int) {
	if d.State != DuelInProgress || round != d.Round {
		return
	}
	a, b := d.Seats[0], d.Seats[1]
	if !a.Submitted && !b.Submitted {
		// Both sides went silent for a full round: the duel is abandoned.
		log.Printf("duel %s: round %d expired with no moves, cancelling", d.ID, d.Round)
		d.State = DuelCancelled
		d.finishLocked()
		return
	}

	moveA, moveB := models.MoveNone, models.MoveNone
	if a.Submitted {
		moveA = a.Choice
	}
	if b.Submitted {
		moveB = b.Choice
	}

	winner := -1
	switch models.Score(moveA, moveB) {
	case 1:
		winner = 0
		a.Score++
	case -1:
		winner = 1
		b.Score++
	}

	d.History = append(d.History, RoundRecord{Round: d.Round, Moves: [2]models.Move{moveA, moveB}, WinnerSeat: winner})

	if d.bot != nil {
		own, human := moveA, moveB
		if d.botSeat == 1 {
			own, human = moveB, moveA
		}
		d.bot.Observe(own, human)
	}

	if d.roundTimer != nil {
		d.roundTimer.Stop()
		d.roundTimer = nil
	}

	ended := a.Score >= WinsRequired || b.Score >= WinsRequired
	d.broadcastLocked(DuelEvent{
		Type:   EventRoundResult,
		DuelID: d.ID,
		Round:  d.Round,
		Moves:  []models.Move{moveA, moveB},
		Winner: winnerPtr(winner),
		Scores: d.scoresLocked(),
		State:  d.State,
	})

	a.Choice, a.Submitted = models.MoveNone, false
	b.Choice, b.Submitted = models.MoveNone, false

	if ended {
		d.State = DuelFinished
		if a.Score >= WinsRequired {
			d.WinnerSeat = 0
		} else {
			d.WinnerSeat = 1
		}
		d.finishLocked()
		return
	}

	d.Round++
	d.startRoundLocked()
}

// finishLocked fires the terminal broadcast and the post-game hook exactly
// once. The hook runs outside the lock on a snapshot. Caller holds Mu.
func (d *Duel) finishLocked() {
	if d.finished {
		return
	}
	d.finished = true
	if d.roundTimer != nil {
		d.roundTimer.Stop()
		d.roundTimer = nil
	}
	d.broadcastLocked(DuelEvent{
		Type:   EventDuelEnd,
		DuelID: d.ID,
		Winner: winnerPtr(d.WinnerSeat),
		Scores: d.scoresLocked(),
		State:  d.State,
	})
	if d.OnFinish != nil {
		sum := d.summaryLocked()
		go d.OnFinish(sum)
	}
}

// summaryLocked snapshots the terminal duel. Caller holds Mu.
func (d *Duel) summaryLocked() Summary {
	sum := Summary{
		ID:           d.ID,
		State:        d.State,
		Rounds:       len(d.History),
		History:      append([]RoundRecord(nil), d.History...),
		WinnerSeat:   d.WinnerSeat,
		TournamentID: d.TournamentID,
		BracketMatch: d.BracketMatch,
		CreatedAt:    d.CreatedAt,
		FinishedAt:   time.Now(),
	}
	for i, s := range d.Seats {
		counts := make(map[models.Move]int)
		for _, r := range d.History {
			if r.Moves[i].Valid() {
				counts[r.Moves[i]]++
			}
		}
		sum.Seats[i] = SeatSummary{Participant: s.Participant, Score: s.Score, ChoiceCounts: counts}
	}
	return sum
}

// Snapshot returns a summary of the duel's current state regardless of
// lifecycle phase, for read-only API responses.
func (d *Duel) Snapshot() Summary {
	d.Mu.Lock()
	defer d.Mu.Unlock()
	return d.summaryLocked()
}

func (d *Duel) scoresLocked() [2]int {
	return [2]int{d.Seats[0].Score, d.Seats[1].Score}
}

func (d *Duel) broadcastLocked(ev DuelEvent) {
	if d.BroadcastFn != nil {
		d.BroadcastFn(ev)
	}
}

func winnerPtr(w int) *int {
	if w < 0 {
		return nil
	}
	return &w
}
