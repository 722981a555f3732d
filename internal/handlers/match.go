// internal/handlers/match.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/riposte-game/riposte/internal/database"
	"github.com/riposte-game/riposte/internal/matchmaker"
)

// FindMatchHandler enters the caller into the matchmaking queue and blocks
// until an opponent within the rating window arrives or the wait expires.
// POST /match/find. Closing the request (leaving the page) withdraws the
// search.
func (ms *MatchServer) FindMatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, err := resolveParticipant(r.Context(), r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	duelID, err := ms.Matchmaker.FindMatch(r.Context(), p)
	switch {
	case errors.Is(err, matchmaker.ErrQueueTimeout):
		writeJSON(w, map[string]interface{}{"matched": false, "reason": "timeout"})
	case errors.Is(err, matchmaker.ErrSearchReplaced):
		writeJSON(w, map[string]interface{}{"matched": false, "reason": "superseded"})
	case errors.Is(err, matchmaker.ErrInvalidParticipant):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		// The searcher left; nothing to report and nobody listening.
		return
	default:
		writeJSON(w, map[string]interface{}{"matched": true, "duel_id": duelID})
	}
}

// BotMatchHandler seats the caller against the computer opponent right away.
// POST /match/bot.
func (ms *MatchServer) BotMatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, err := resolveParticipant(r.Context(), r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	duelID, err := ms.Matchmaker.FindBotMatch(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]interface{}{"matched": true, "duel_id": duelID})
}

// GetDuelHandler returns a read-only snapshot of a duel.
// GET /duel/{duel_id}.
func (ms *MatchServer) GetDuelHandler(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/duel/")
	duelID, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid duel id", http.StatusBadRequest)
		return
	}
	d, ok := ms.Duels.GetDuel(duelID)
	if !ok {
		http.Error(w, "duel not found", http.StatusNotFound)
		return
	}
	writeJSON(w, d.Snapshot())
}

// LeaderboardHandler returns the top-rated participants.
// GET /leaderboard?limit=N.
func (ms *MatchServer) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	top, err := database.TopParticipants(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	writeJSON(w, top)
}
