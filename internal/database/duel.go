package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/riposte-game/riposte/internal/game"
	"github.com/riposte-game/riposte/internal/models"
)

// RecordDuel persists a terminal duel: the duel row plus one result row per
// seat carrying the score and per-choice throw counts.
func RecordDuel(ctx context.Context, sum game.Summary) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertDuel := `
			INSERT INTO duels (id, state, tournament_id, rounds, created_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, rounds = EXCLUDED.rounds, finished_at = EXCLUDED.finished_at
		`
		var tid *uuid.UUID
		if sum.TournamentID != uuid.Nil {
			tid = &sum.TournamentID
		}
		if _, e := tx.Exec(ctx, upsertDuel, sum.ID, string(sum.State), tid, sum.Rounds, sum.CreatedAt, sum.FinishedAt); e != nil {
			return e
		}

		for i, seat := range sum.Seats {
			if !seat.Participant.Human {
				continue
			}
			counts, e := json.Marshal(choiceCountsJSON(seat.ChoiceCounts))
			if e != nil {
				return e
			}
			q := `
				INSERT INTO duel_results (duel_id, participant_id, score, did_win, choice_counts)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (duel_id, participant_id)
				DO UPDATE SET score=$3, did_win=$4, choice_counts=$5
			`
			if _, e2 := tx.Exec(ctx, q, sum.ID, seat.Participant.ID, seat.Score, sum.WinnerSeat == i, counts); e2 != nil {
				return e2
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert duel or results: %w", err)
	}
	if len(sum.History) > 0 {
		return StoreRoundHistory(ctx, sum.ID, sum.History)
	}
	return nil
}

// CommitRatings writes both participants' post-duel ratings and the audit
// records in a single transaction, so a crash never leaves one side
// adjusted without the other.
func CommitRatings(ctx context.Context, duelID uuid.UUID, winnerID, loserID uuid.UUID, oldW, oldL, newW, newL int) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, e1 := tx.Exec(ctx, `UPDATE participants SET rating = $1 WHERE id = $2`, newW, winnerID); e1 != nil {
			return e1
		}
		if _, e2 := tx.Exec(ctx, `UPDATE participants SET rating = $1 WHERE id = $2`, newL, loserID); e2 != nil {
			return e2
		}
		_, e3 := tx.Exec(ctx, `
			INSERT INTO rating_changes (participant_id, duel_id, old_rating, new_rating)
			VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)
		`,
			winnerID, duelID, oldW, newW,
			loserID, duelID, oldL, newL,
		)
		return e3
	})
	if err != nil {
		return fmt.Errorf("failed to commit duel ratings: %w", err)
	}
	return nil
}

// StoreRoundHistory attaches the resolved round list to the duel row as
// JSON, for replays and anti-cheat review.
func StoreRoundHistory(ctx context.Context, duelID uuid.UUID, history []game.RoundRecord) error {
	js, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal round history: %w", err)
	}
	q := `UPDATE duels SET round_history = $1 WHERE id = $2`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, e := tx.Exec(ctx, q, js, duelID)
		return e
	})
}

// choiceCountsJSON flattens the move histogram into stable string keys.
func choiceCountsJSON(counts map[models.Move]int) map[string]int {
	out := make(map[string]int, len(counts))
	for m, n := range counts {
		out[string(m)] = n
	}
	return out
}

// RecordDuelAsync runs RecordDuel on a background context and logs failures
// instead of surfacing them, for callers inside the post-game hook.
func RecordDuelAsync(sum game.Summary) {
	if DB == nil {
		return
	}
	ctx := context.Background()
	if err := RecordDuel(ctx, sum); err != nil {
		log.Printf("failed to persist duel %s: %v", sum.ID, err)
	}
}
