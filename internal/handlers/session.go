// internal/handlers/session.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/riposte-game/riposte/internal/auth"
	"github.com/riposte-game/riposte/internal/database"
	"github.com/riposte-game/riposte/internal/models"
	"github.com/riposte-game/riposte/internal/rating"
)

// SessionHandler mints a session for a new or returning player.
// POST /session {"name": "..."} issues a token for a fresh participant at
// the default rating; a valid existing token is returned as-is.
func SessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if sess, err := auth.SessionFromRequest(r); err == nil {
		writeJSON(w, map[string]interface{}{
			"participant_id": sess.ParticipantID,
			"name":           sess.Name,
		})
		return
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "a display name is required", http.StatusBadRequest)
		return
	}

	p := models.Participant{
		ID:     uuid.New(),
		Name:   body.Name,
		Rating: rating.DefaultRating,
		Human:  true,
	}
	if database.DB != nil {
		if err := database.EnsureParticipant(r.Context(), p); err != nil {
			http.Error(w, "failed to register participant", http.StatusInternalServerError)
			return
		}
	}

	token, err := auth.CreateSessionToken(p.ID, p.Name)
	if err != nil {
		http.Error(w, "failed to create session token", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, map[string]interface{}{
		"participant_id": p.ID,
		"name":           p.Name,
		"rating":         p.Rating,
		"token":          token,
	})
}

// resolveParticipant authenticates the request and loads the caller's
// current profile. Without a database the session claims stand in, at the
// default rating.
func resolveParticipant(ctx context.Context, r *http.Request) (models.Participant, error) {
	sess, err := auth.SessionFromRequest(r)
	if err != nil {
		return models.Participant{}, err
	}
	if database.DB != nil {
		p, err := database.FetchParticipant(ctx, sess.ParticipantID)
		if err != nil {
			return models.Participant{}, fmt.Errorf("unknown participant: %w", err)
		}
		return *p, nil
	}
	return models.Participant{
		ID:     sess.ParticipantID,
		Name:   sess.Name,
		Rating: rating.DefaultRating,
		Human:  true,
	}, nil
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
