// internal/handlers/match_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riposte-game/riposte/internal/auth"
	"github.com/riposte-game/riposte/internal/game"
	"github.com/riposte-game/riposte/internal/models"
)

func newTestServer() *MatchServer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	ms := NewMatchServer(logger, nil)
	ms.Matchmaker.Timeout = 50 * time.Millisecond
	return ms
}

func authedRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	token, err := auth.CreateSessionToken(uuid.New(), "tester")
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Cookie", "auth_token="+token)
	return req
}

// TestBotMatchCreatesDuel checks that /match/bot seats the caller against
// the computer opponent and the duel is immediately live.
func TestBotMatchCreatesDuel(t *testing.T) {
	auth.Init() // ephemeral keys, no DB needed
	ms := newTestServer()

	w := httptest.NewRecorder()
	ms.BotMatchHandler(w, authedRequest(t, "POST", "/match/bot", ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Matched bool      `json:"matched"`
		DuelID  uuid.UUID `json:"duel_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Matched)

	d, ok := ms.Duels.GetDuel(resp.DuelID)
	require.True(t, ok, "duel should be registered")
	d.Mu.Lock()
	defer d.Mu.Unlock()
	assert.Equal(t, game.DuelInProgress, d.State)
	assert.False(t, d.Seats[0].Participant.Human && d.Seats[1].Participant.Human,
		"one seat belongs to the computer opponent")
}

// TestFindMatchTimesOutAlone checks that an unmatched search reports its
// timeout instead of hanging.
func TestFindMatchTimesOutAlone(t *testing.T) {
	auth.Init()
	ms := newTestServer()

	w := httptest.NewRecorder()
	ms.FindMatchHandler(w, authedRequest(t, "POST", "/match/find", ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Matched bool   `json:"matched"`
		Reason  string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Matched)
	assert.Equal(t, "timeout", resp.Reason)
}

// TestMatchRequiresAuth checks that matchmaking rejects anonymous calls.
func TestMatchRequiresAuth(t *testing.T) {
	auth.Init()
	ms := newTestServer()

	w := httptest.NewRecorder()
	ms.FindMatchHandler(w, httptest.NewRequest("POST", "/match/find", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	ms.BotMatchHandler(w, httptest.NewRequest("POST", "/match/bot", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestGetDuelSnapshot checks the read-only duel endpoint.
func TestGetDuelSnapshot(t *testing.T) {
	auth.Init()
	ms := newTestServer()

	w := httptest.NewRecorder()
	ms.BotMatchHandler(w, authedRequest(t, "POST", "/match/bot", ""))
	require.Equal(t, http.StatusOK, w.Code)

	var created struct {
		DuelID uuid.UUID `json:"duel_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = httptest.NewRecorder()
	ms.GetDuelHandler(w, httptest.NewRequest("GET", "/duel/"+created.DuelID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snap game.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, created.DuelID, snap.ID)

	w = httptest.NewRecorder()
	ms.GetDuelHandler(w, httptest.NewRequest("GET", "/duel/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestCancelledQuickPlayIsNotRecorded checks that a duel abandoned by both
// seats leaves no persistence record, while finished duels and forfeited
// bracket duels do.
func TestCancelledQuickPlayIsNotRecorded(t *testing.T) {
	mk := func(state game.DuelState, tid uuid.UUID) game.Summary {
		return game.Summary{ID: uuid.New(), State: state, WinnerSeat: -1, TournamentID: tid}
	}

	assert.False(t, recordable(mk(game.DuelCancelled, uuid.Nil)))
	assert.True(t, recordable(mk(game.DuelFinished, uuid.Nil)))
	assert.True(t, recordable(mk(game.DuelCancelled, uuid.New())),
		"a forfeited bracket duel is still archived")
}

// TestRatingSettlementSides checks which seats move after a finished
// quick-play duel.
func TestRatingSettlementSides(t *testing.T) {
	seat := func(h bool, r int) game.SeatSummary {
		return game.SeatSummary{Participant: models.Participant{ID: uuid.New(), Name: "p", Rating: r, Human: h}}
	}

	// A human pair moves both sides, winner first.
	sum := game.Summary{WinnerSeat: 1, Seats: [2]game.SeatSummary{seat(true, 1000), seat(true, 1000)}}
	ups := ratingUpdates(sum)
	require.Len(t, ups, 2)
	assert.Equal(t, sum.Seats[1].Participant.ID, ups[0].ID)
	assert.Greater(t, ups[0].New, ups[0].Old)
	assert.Less(t, ups[1].New, ups[1].Old)

	// Against the bot only the human seat moves.
	sum = game.Summary{WinnerSeat: 0, Seats: [2]game.SeatSummary{seat(false, 1000), seat(true, 1000)}}
	ups = ratingUpdates(sum)
	require.Len(t, ups, 1)
	assert.Equal(t, sum.Seats[1].Participant.ID, ups[0].ID)
	assert.Less(t, ups[0].New, ups[0].Old)

	// Two bots settle nothing.
	sum = game.Summary{WinnerSeat: 0, Seats: [2]game.SeatSummary{seat(false, 1000), seat(false, 1000)}}
	assert.Empty(t, ratingUpdates(sum))
}

// TestTournamentLifecycleOverHTTP drives create, join and start through the
// tournament router.
func TestTournamentLifecycleOverHTTP(t *testing.T) {
	auth.Init()
	ms := newTestServer()

	w := httptest.NewRecorder()
	ms.TournamentHandler(w, authedRequest(t, "POST", "/tournament/create", `{"name":"evening cup","cap":4}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created struct {
		TournamentID uuid.UUID `json:"tournament_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	for i := 0; i < 4; i++ {
		w = httptest.NewRecorder()
		ms.TournamentHandler(w, authedRequest(t, "POST", "/tournament/join/"+created.TournamentID.String(), ""))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// A fifth seat bounces off the cap.
	w = httptest.NewRecorder()
	ms.TournamentHandler(w, authedRequest(t, "POST", "/tournament/join/"+created.TournamentID.String(), ""))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	ms.TournamentHandler(w, authedRequest(t, "POST", "/tournament/start/"+created.TournamentID.String(), ""))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Both round-1 duels exist and are live.
	tn, ok := ms.Brackets.Get(created.TournamentID)
	require.True(t, ok)
	tn.Mu.Lock()
	assert.Equal(t, 4, tn.Size)
	tn.Mu.Unlock()

	live := 0
	ms.Duels.Range(func(d *game.Duel) bool {
		d.Mu.Lock()
		if d.TournamentID == created.TournamentID && d.State == game.DuelInProgress {
			live++
		}
		d.Mu.Unlock()
		return true
	})
	assert.Equal(t, 2, live, "both round-1 duels should be live")
}
