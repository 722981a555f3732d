package cache

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
)

// RoundQueue is the Redis list the historian pops round records from.
const RoundQueue = "riposte_rounds"

// RoundArchiveRecord is one resolved round pushed onto the archive queue.
type RoundArchiveRecord struct {
	DuelID     uuid.UUID `json:"duel_id"`
	Round      int       `json:"round"`
	Moves      [2]string `json:"moves"`
	WinnerSeat int       `json:"winner_seat"` // -1 on a draw
	Timestamp  int64     `json:"timestamp"`   // epoch millis
}

// EnqueueRound pushes one round record for asynchronous persistence. A
// missing client or a push failure drops the record; the archive is an
// audit trail, not the source of truth.
func EnqueueRound(ctx context.Context, rec RoundArchiveRecord) {
	if Rdb == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("cache: failed to marshal round record for %s: %v", rec.DuelID, err)
		return
	}
	if err := Rdb.RPush(ctx, RoundQueue, data).Err(); err != nil {
		log.Printf("cache: failed to enqueue round record for %s: %v", rec.DuelID, err)
	}
}
