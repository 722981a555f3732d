package models

import "github.com/google/uuid"

// Participant is the slice of a player record the duel core needs: identity,
// display name and current rating. The record itself is owned by the
// persistence layer; the core only ever asks it to mutate ratings.
type Participant struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Rating int       `json:"rating"`

	// Human is false for the built-in predictor opponent.
	Human bool `json:"human"`
}
