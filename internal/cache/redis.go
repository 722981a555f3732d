// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rdb is the global Redis client. Connect it once at application startup.
// Every mirror call below is a no-op while it is nil, so the engine (and its
// tests) runs without Redis; the mirror is the observable ephemeral view,
// not the serialization point.
var Rdb *redis.Client

// The three logical namespaces of the shared ephemeral store.
const (
	NamespaceQueue       = "queue"
	NamespaceDuels       = "duels"
	NamespaceTournaments = "tournaments"
)

// QueueEntryRecord is the mirrored form of a waiting matchmaking request.
type QueueEntryRecord struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Name          string    `json:"name"`
	Rating        int       `json:"rating"`
	Human         bool      `json:"human"`
	EnqueuedAt    int64     `json:"enqueued_at"`
}

// DuelRecord is the mirrored form of a live or just-finished duel.
type DuelRecord struct {
	ID           uuid.UUID `json:"id"`
	State        string    `json:"state"`
	Round        int       `json:"round"`
	Scores       [2]int    `json:"scores"`
	TournamentID uuid.UUID `json:"tournament_id,omitempty"`
}

// TournamentRecord is the mirrored form of a tournament's headline state.
type TournamentRecord struct {
	ID       uuid.UUID `json:"id"`
	Status   string    `json:"status"`
	Size     int       `json:"size"`
	WinnerID uuid.UUID `json:"winner_id,omitempty"`
}

// ConnectRedis initializes the global Redis client with environment variables:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis() error {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// Mirror writes one record under ns/id and publishes a change notification
// on the namespace channel.
func Mirror(ctx context.Context, ns string, id uuid.UUID, record interface{}) {
	if Rdb == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		log.Printf("cache: failed to marshal %s/%s: %v", ns, id, err)
		return
	}
	key := fmt.Sprintf("%s/%s", ns, id)
	if err := Rdb.Set(ctx, key, data, 0).Err(); err != nil {
		log.Printf("cache: failed to SET %s: %v", key, err)
		return
	}
	notify(ctx, ns, "set", id)
}

// Drop deletes ns/id and publishes the deletion. For queue entries the
// deletion event is the "you got matched" signal consumed by other readers
// of the shared store.
func Drop(ctx context.Context, ns string, id uuid.UUID) {
	if Rdb == nil {
		return
	}
	key := fmt.Sprintf("%s/%s", ns, id)
	if err := Rdb.Del(ctx, key).Err(); err != nil {
		log.Printf("cache: failed to DEL %s: %v", key, err)
		return
	}
	notify(ctx, ns, "del", id)
}

// Subscribe returns a pubsub subscription over one namespace's change feed.
// The caller owns the subscription and must Close it. Returns nil when Redis
// is not connected.
func Subscribe(ctx context.Context, ns string) *redis.PubSub {
	if Rdb == nil {
		return nil
	}
	return Rdb.Subscribe(ctx, changeChannel(ns))
}

// ParseChange decodes one change-feed payload published by Mirror and Drop
// into its operation ("set" or "del") and subject id.
func ParseChange(payload string) (string, uuid.UUID, error) {
	op, rest, ok := strings.Cut(payload, " ")
	if !ok {
		return "", uuid.Nil, fmt.Errorf("malformed change payload %q", payload)
	}
	id, err := uuid.Parse(rest)
	return op, id, err
}

func notify(ctx context.Context, ns, op string, id uuid.UUID) {
	if err := Rdb.Publish(ctx, changeChannel(ns), changePayload(op, id)).Err(); err != nil {
		log.Printf("cache: failed to publish %s change: %v", ns, err)
	}
}

func changePayload(op string, id uuid.UUID) string {
	return fmt.Sprintf("%s %s", op, id)
}

func changeChannel(ns string) string {
	return "riposte:" + ns + ":changes"
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
