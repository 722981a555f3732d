// internal/handlers/tournament.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/riposte-game/riposte/internal/bracket"
	"github.com/riposte-game/riposte/internal/cache"
)

// TournamentHandler routes /tournament requests:
//
//	POST /tournament/create          {"name": "...", "cap": 8}
//	POST /tournament/join/{id}
//	POST /tournament/start/{id}
//	GET  /tournament/{id}
func (ms *MatchServer) TournamentHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tournament/")
	switch {
	case path == "create" && r.Method == http.MethodPost:
		ms.handleCreateTournament(w, r)
	case strings.HasPrefix(path, "join/") && r.Method == http.MethodPost:
		ms.handleJoinTournament(w, r, strings.TrimPrefix(path, "join/"))
	case strings.HasPrefix(path, "start/") && r.Method == http.MethodPost:
		ms.handleStartTournament(w, r, strings.TrimPrefix(path, "start/"))
	case r.Method == http.MethodGet:
		ms.handleGetTournament(w, r, path)
	default:
		http.Error(w, "unsupported tournament route", http.StatusNotFound)
	}
}

func (ms *MatchServer) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	if _, err := resolveParticipant(r.Context(), r); err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var body struct {
		Name string `json:"name"`
		Cap  int    `json:"cap"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "a tournament name and cap are required", http.StatusBadRequest)
		return
	}

	t, err := ms.Brackets.Create(body.Name, body.Cap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ms.mirrorTournament(r.Context(), t)
	writeJSON(w, map[string]interface{}{"tournament_id": t.ID})
}

func (ms *MatchServer) handleJoinTournament(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	p, err := resolveParticipant(r.Context(), r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := ms.Brackets.Join(id, p); err != nil {
		http.Error(w, err.Error(), tournamentErrStatus(err))
		return
	}
	if t, ok := ms.Brackets.Get(id); ok {
		ms.mirrorTournament(r.Context(), t)
	}
	writeJSON(w, map[string]interface{}{"joined": true, "tournament_id": id})
}

func (ms *MatchServer) handleStartTournament(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	if _, err := resolveParticipant(r.Context(), r); err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := ms.Brackets.Start(id); err != nil {
		http.Error(w, err.Error(), tournamentErrStatus(err))
		return
	}
	if t, ok := ms.Brackets.Get(id); ok {
		ms.mirrorTournament(r.Context(), t)
	}
	writeJSON(w, map[string]interface{}{"started": true, "tournament_id": id})
}

func (ms *MatchServer) handleGetTournament(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return
	}
	t, ok := ms.Brackets.Get(id)
	if !ok {
		http.Error(w, "tournament not found", http.StatusNotFound)
		return
	}
	t.Mu.Lock()
	defer t.Mu.Unlock()
	writeJSON(w, t)
}

// mirrorTournament pushes the tournament's headline state to the shared
// store.
func (ms *MatchServer) mirrorTournament(ctx context.Context, t *bracket.Tournament) {
	t.Mu.Lock()
	rec := cache.TournamentRecord{
		ID:       t.ID,
		Status:   string(t.Status),
		Size:     t.Size,
		WinnerID: t.WinnerID,
	}
	t.Mu.Unlock()
	cache.Mirror(ctx, cache.NamespaceTournaments, rec.ID, rec)
}

// tournamentErrStatus maps bracket engine errors onto HTTP status codes.
func tournamentErrStatus(err error) int {
	switch {
	case errors.Is(err, bracket.ErrTournamentNotFound), errors.Is(err, bracket.ErrMatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, bracket.ErrTournamentFull),
		errors.Is(err, bracket.ErrAlreadyStarted),
		errors.Is(err, bracket.ErrAlreadyJoined):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
