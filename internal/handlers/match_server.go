// internal/handlers/match_server.go
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/riposte-game/riposte/internal/bracket"
	"github.com/riposte-game/riposte/internal/cache"
	"github.com/riposte-game/riposte/internal/database"
	"github.com/riposte-game/riposte/internal/game"
	"github.com/riposte-game/riposte/internal/matchmaker"
	"github.com/riposte-game/riposte/internal/metrics"
	"github.com/riposte-game/riposte/internal/models"
	"github.com/riposte-game/riposte/internal/rating"
)

// MatchServer is the high-level owner of all live play: the duel store, the
// matchmaking queue, the tournament engine and the per-duel websocket
// fan-out. Every duel it creates gets the same broadcast plumbing and the
// same post-game hook.
type MatchServer struct {
	Duels      *game.DuelStore
	Matchmaker *matchmaker.Matchmaker
	Brackets   *bracket.Engine
	Metrics    *metrics.Service
	Logger     *logrus.Logger

	// connsMu guards conns: duel id -> connected websocket clients.
	connsMu sync.Mutex
	conns   map[uuid.UUID][]*websocket.Conn
}

func NewMatchServer(logger *logrus.Logger, m *metrics.Service) *MatchServer {
	ms := &MatchServer{
		Duels:   game.NewDuelStore(),
		Metrics: m,
		Logger:  logger,
		conns:   make(map[uuid.UUID][]*websocket.Conn),
	}
	ms.Matchmaker = matchmaker.New(ms.Duels)
	ms.Matchmaker.Metrics = m
	ms.Matchmaker.OnDuelCreated = ms.wireDuel

	ms.Brackets = bracket.NewEngine()
	ms.Brackets.Metrics = m
	ms.Brackets.NewDuel = ms.newTournamentDuel
	return ms
}

// wireDuel attaches the fan-out and the post-game hook to a freshly built
// duel. Called by the matchmaker and the bracket engine before Begin.
func (ms *MatchServer) wireDuel(d *game.Duel) {
	d.BroadcastFn = ms.broadcastFunc(d)
	d.OnFinish = ms.onDuelFinish
}

// newTournamentDuel is the bracket engine's duel factory. Bracket duels
// carry their tournament linkage so the post-game hook can advance the
// winner.
func (ms *MatchServer) newTournamentDuel(tournamentID uuid.UUID, matchIndex int, a, b models.Participant) {
	d := game.NewDuel(a, b)
	d.TournamentID = tournamentID
	d.BracketMatch = matchIndex
	ms.wireDuel(d)
	ms.Duels.AddDuel(d)
	if ms.Metrics != nil {
		ms.Metrics.DuelsStarted.Inc()
	}
	d.Begin()
}

// broadcastFunc returns the BroadcastFn for one duel. It is called while
// the duel lock is held, so it snapshots the connection list and writes
// asynchronously.
func (ms *MatchServer) broadcastFunc(d *game.Duel) func(ev game.DuelEvent) {
	return func(ev game.DuelEvent) {
		if ev.Type == game.EventRoundResult {
			if ms.Metrics != nil {
				ms.Metrics.RoundsResolved.Inc()
			}
			winner := -1
			if ev.Winner != nil {
				winner = *ev.Winner
			}
			go cache.EnqueueRound(context.Background(), cache.RoundArchiveRecord{
				DuelID:     d.ID,
				Round:      ev.Round,
				Moves:      [2]string{string(ev.Moves[0]), string(ev.Moves[1])},
				WinnerSeat: winner,
				Timestamp:  time.Now().UnixMilli(),
			})
		}

		// TournamentID is fixed at creation, safe to read here.
		rec := cache.DuelRecord{
			ID:           d.ID,
			State:        string(ev.State),
			Round:        ev.Round,
			Scores:       ev.Scores,
			TournamentID: d.TournamentID,
		}
		go cache.Mirror(context.Background(), cache.NamespaceDuels, d.ID, rec)

		ms.connsMu.Lock()
		targets := make([]*websocket.Conn, len(ms.conns[d.ID]))
		copy(targets, ms.conns[d.ID])
		ms.connsMu.Unlock()

		if len(targets) == 0 {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("failed to marshal duel event %s for %s: %v", ev.Type, d.ID, err)
			return
		}

		go func(conns []*websocket.Conn, payload []byte) {
			for _, c := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := c.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					log.Printf("failed to write duel event to client of %s: %v", d.ID, err)
				}
			}
		}(targets, data)
	}
}

// registerConn adds a websocket client to a duel's fan-out list.
func (ms *MatchServer) registerConn(duelID uuid.UUID, c *websocket.Conn) {
	ms.connsMu.Lock()
	defer ms.connsMu.Unlock()
	ms.conns[duelID] = append(ms.conns[duelID], c)
}

// unregisterConn removes a websocket client; the duel's slot disappears
// once the last client leaves.
func (ms *MatchServer) unregisterConn(duelID uuid.UUID, c *websocket.Conn) {
	ms.connsMu.Lock()
	defer ms.connsMu.Unlock()
	list := ms.conns[duelID]
	for i, cc := range list {
		if cc == c {
			ms.conns[duelID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(ms.conns[duelID]) == 0 {
		delete(ms.conns, duelID)
	}
}

// onDuelFinish is the post-game hook, invoked once per terminal duel on its
// own goroutine with an immutable summary. Tournament duels feed the
// bracket; quick-play duels between humans go to persistence and the rating
// engine.
func (ms *MatchServer) onDuelFinish(sum game.Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ms.Metrics != nil {
		if sum.State == game.DuelCancelled {
			ms.Metrics.DuelsCancelled.Inc()
		} else {
			ms.Metrics.DuelsFinished.Inc()
		}
	}

	switch {
	case sum.TournamentID != uuid.Nil:
		ms.advanceBracket(sum)
	case sum.State == game.DuelFinished:
		ms.settleRanked(ctx, sum)
	}

	if recordable(sum) {
		database.RecordDuelAsync(sum)
	}
	// The terminal duel stays in the store for late snapshot reads; the
	// sweeper reaps it. Only the live mirror goes now.
	cache.Drop(ctx, cache.NamespaceDuels, sum.ID)
}

// advanceBracket reports a tournament duel's outcome to the bracket engine.
// A cancelled duel still has to move the bracket forward, so the first seat
// advances by forfeit.
func (ms *MatchServer) advanceBracket(sum game.Summary) {
	winnerSeat := sum.WinnerSeat
	if winnerSeat < 0 {
		winnerSeat = 0
		ms.Logger.Warnf("tournament duel %s cancelled, advancing %s by forfeit",
			sum.ID, sum.Seats[0].Participant.Name)
	}
	winnerID := sum.Seats[winnerSeat].Participant.ID
	if err := ms.Brackets.AdvanceWinner(sum.TournamentID, sum.BracketMatch, winnerID); err != nil {
		ms.Logger.Errorf("failed to advance bracket %s match %d: %v",
			sum.TournamentID, sum.BracketMatch, err)
	}
}

// recordable reports whether a terminal duel reaches persistence. A
// cancelled quick-play duel leaves no record; a cancelled tournament duel is
// still archived because its forfeit moved the bracket.
func recordable(sum game.Summary) bool {
	return sum.State == game.DuelFinished || sum.TournamentID != uuid.Nil
}

// ratingUpdate is one pending rating push for a seat of a finished duel.
type ratingUpdate struct {
	ID       uuid.UUID
	Old, New int
}

// ratingUpdates derives the rating pushes for a finished quick-play duel,
// winner first. A human pair moves both sides; against the bot only the
// human seat moves; an all-bot duel settles nothing.
func ratingUpdates(sum game.Summary) []ratingUpdate {
	w := sum.Seats[sum.WinnerSeat].Participant
	l := sum.Seats[1-sum.WinnerSeat].Participant

	var ups []ratingUpdate
	if w.Human {
		ups = append(ups, ratingUpdate{ID: w.ID, Old: w.Rating, New: rating.NextRating(w.Rating, l.Rating, true)})
	}
	if l.Human {
		ups = append(ups, ratingUpdate{ID: l.ID, Old: l.Rating, New: rating.NextRating(l.Rating, w.Rating, false)})
	}
	return ups
}

// settleRanked pushes the rating exchange for a finished quick-play duel.
func (ms *MatchServer) settleRanked(ctx context.Context, sum game.Summary) {
	ups := ratingUpdates(sum)
	if len(ups) == 0 || database.DB == nil {
		return
	}
	var err error
	if len(ups) == 2 {
		// Both sides land in one transaction so a crash never leaves one
		// seat adjusted without the other.
		err = database.CommitRatings(ctx, sum.ID, ups[0].ID, ups[1].ID, ups[0].Old, ups[1].Old, ups[0].New, ups[1].New)
	} else {
		err = database.AdjustRating(ctx, ups[0].ID, ups[0].New)
	}
	if err != nil {
		ms.Logger.Errorf("failed to commit ratings for duel %s: %v", sum.ID, err)
	}
}
