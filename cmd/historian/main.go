// cmd/historian/main.go is an asynchronous historian service that pops round
// records from a Redis queue and persists them to PostgreSQL. It also marks
// duels abandoned in the archive when their round stream goes quiet.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/riposte-game/riposte/internal/cache"
	"github.com/riposte-game/riposte/internal/database"
)

// HistorianService encapsulates the Redis + DB logic for capturing round
// records and marking duels abandoned when an inactivity threshold passes.
type HistorianService struct {
	redisClient  *redis.Client
	batchSize    int
	flushDelay   time.Duration
	inactivity   time.Duration
	lastActivity sync.Map // map[uuid.UUID]time.Time, last round or mirror write seen per duel

	batchMu  sync.Mutex
	batch    []cache.RoundArchiveRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewHistorianService constructs a HistorianService from environment
// variables or defaults.
func NewHistorianService() *HistorianService {
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	inactivitySec := getEnvInt("DUEL_INACTIVITY_TIMEOUT_SEC", 600)

	if err := cache.ConnectRedis(); err != nil {
		log.Fatalf("historian requires Redis: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &HistorianService{
		redisClient: cache.Rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		inactivity:  time.Duration(inactivitySec) * time.Second,
		batch:       make([]cache.RoundArchiveRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run starts the two main loops: the queue reader with batched flushes, and
// the periodic inactivity check.
func (hs *HistorianService) Run() {
	database.ConnectDB()

	go hs.readRedisLoop()
	go hs.changeFeedLoop()
	go hs.inactivityLoop()

	log.Println("riposte-historian service started.")
	<-hs.ctx.Done()
	log.Println("riposte-historian shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve round records from the
// archive queue.
func (hs *HistorianService) readRedisLoop() {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			hs.flushBatchToDB()

		default:
			// BLPop with a short timeout so context cancellation is handled.
			res, err := hs.redisClient.BLPop(hs.ctx, 3*time.Second, cache.RoundQueue).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var rec cache.RoundArchiveRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				log.Printf("invalid round record: %v\n", err)
				continue
			}

			hs.lastActivity.Store(rec.DuelID, time.Now())
			hs.appendToBatch(rec)
		}
	}
}

// changeFeedLoop consumes the live duel change feed. Every mirror write
// counts as activity for the inactivity check; a drop means the duel reached
// a terminal state in the engine and no longer needs abandonment tracking.
func (hs *HistorianService) changeFeedLoop() {
	sub := cache.Subscribe(hs.ctx, cache.NamespaceDuels)
	if sub == nil {
		return
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-hs.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			op, duelID, err := cache.ParseChange(msg.Payload)
			if err != nil {
				log.Printf("invalid change notification: %v\n", err)
				continue
			}
			switch op {
			case "set":
				hs.lastActivity.Store(duelID, time.Now())
			case "del":
				hs.lastActivity.Delete(duelID)
			}
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes if the
// threshold is reached.
func (hs *HistorianService) appendToBatch(rec cache.RoundArchiveRecord) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	hs.batch = append(hs.batch, rec)
	if len(hs.batch) >= hs.batchSize {
		hs.flushBatchLocked()
	}
}

// flushBatchToDB flushes the current batch to the database.
func (hs *HistorianService) flushBatchToDB() {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.flushBatchLocked()
}

// flushBatchLocked writes the batch in a single transaction. Caller holds
// batchMu.
func (hs *HistorianService) flushBatchLocked() {
	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]cache.RoundArchiveRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertRoundTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoundTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flush batch: %v\n", err)
	} else {
		log.Printf("Flushed %d rounds to DB.\n", len(batchCopy))
	}
}

// inactivityLoop periodically marks duels whose round stream stalled as
// abandoned in the archive.
func (hs *HistorianService) inactivityLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-hs.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			hs.lastActivity.Range(func(key, val interface{}) bool {
				duelID, ok1 := key.(uuid.UUID)
				last, ok2 := val.(time.Time)
				if ok1 && ok2 && now.Sub(last) > hs.inactivity {
					hs.markDuelAbandoned(duelID)
					hs.lastActivity.Delete(duelID)
				}
				return true
			})
		}
	}
}

// markDuelAbandoned marks a duel 'abandoned' in the archive if it is still
// recorded as in progress.
func (hs *HistorianService) markDuelAbandoned(duelID uuid.UUID) {
	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			UPDATE duels
			SET state = 'abandoned', finished_at = NOW()
			WHERE id = $1 AND state = 'in_progress'
		`
		_, e := tx.Exec(ctx, q, duelID)
		return e
	})
	if err != nil {
		log.Printf("failed to mark duel %v abandoned: %v", duelID, err)
	} else {
		log.Printf("Marked duel %v as 'abandoned' due to inactivity.", duelID)
	}
}

// insertRoundTx inserts a single round record and upserts the duel row so
// the archive is self-sufficient even when the record arrives before the
// duel's terminal write.
func insertRoundTx(ctx context.Context, tx pgx.Tx, rec cache.RoundArchiveRecord) error {
	upsertDuelQ := `
		INSERT INTO duels (id, state, created_at)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertDuelQ, rec.DuelID); err != nil {
		return err
	}

	insertQ := `
		INSERT INTO duel_rounds (duel_id, round, move_a, move_b, winner_seat, played_at)
		VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))
		ON CONFLICT (duel_id, round) DO NOTHING
	`
	_, err := tx.Exec(ctx, insertQ,
		rec.DuelID, rec.Round, rec.Moves[0], rec.Moves[1], rec.WinnerSeat, rec.Timestamp,
	)
	return err
}

// Stop gracefully stops the historian service.
func (hs *HistorianService) Stop() {
	hs.cancelFn()
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	hs := NewHistorianService()
	hs.Run()
}
