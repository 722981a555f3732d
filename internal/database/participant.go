package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riposte-game/riposte/internal/models"
)

// FetchParticipant loads a registered player's profile and current rating.
func FetchParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	var p models.Participant
	q := `
	SELECT id, name, rating
	FROM participants
	WHERE id=$1
	`
	err := DB.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name, &p.Rating)
	if err != nil {
		return nil, err
	}
	p.Human = true
	return &p, nil
}

// EnsureParticipant inserts a participant row if one does not exist yet.
// Existing rows keep their rating; only the display name is refreshed.
func EnsureParticipant(ctx context.Context, p models.Participant) error {
	q := `
	INSERT INTO participants (id, name, rating)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, p.ID, p.Name, p.Rating)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// AdjustRating writes a participant's new rating.
func AdjustRating(ctx context.Context, id uuid.UUID, newRating int) error {
	q := `UPDATE participants SET rating = $1 WHERE id = $2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, newRating, id)
		return err
	})
}

// TopParticipants returns the leaderboard, highest rating first.
func TopParticipants(ctx context.Context, limit int) ([]models.Participant, error) {
	q := `
	SELECT id, name, rating
	FROM participants
	ORDER BY rating DESC
	LIMIT $1
	`
	rows, err := DB.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Rating); err != nil {
			return nil, err
		}
		p.Human = true
		out = append(out, p)
	}
	return out, rows.Err()
}
