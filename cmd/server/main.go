// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/riposte-game/riposte/internal/auth"
	"github.com/riposte-game/riposte/internal/cache"
	"github.com/riposte-game/riposte/internal/database"
	"github.com/riposte-game/riposte/internal/handlers"
	"github.com/riposte-game/riposte/internal/jobs"
	"github.com/riposte-game/riposte/internal/metrics"
	"github.com/riposte-game/riposte/internal/middleware"
)

func main() {
	auth.Init()
	database.ConnectDB()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := cache.ConnectRedis(); err != nil {
		// The shared store is a best-effort mirror; play continues without it.
		logger.Warnf("redis unavailable, running without the shared store: %v", err)
	}

	m := metrics.NewService()
	ms := handlers.NewMatchServer(logger, m)

	sched, err := jobs.StartSweeper(ms.Duels, ms.Brackets)
	if err != nil {
		log.Fatalf("failed to start sweeper: %v", err)
	}
	defer func() { _ = sched.Shutdown() }()

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	// session endpoint
	mux.Handle("/session", logged(http.HandlerFunc(handlers.SessionHandler)))

	// matchmaking endpoints
	mux.Handle("/match/find", logged(http.HandlerFunc(ms.FindMatchHandler)))
	mux.Handle("/match/bot", logged(http.HandlerFunc(ms.BotMatchHandler)))

	// duel endpoints
	mux.Handle("/duel/ws/", logged(http.HandlerFunc(
		handlers.DuelWSHandler(logger, ms),
	)))
	mux.Handle("/duel/", logged(http.HandlerFunc(ms.GetDuelHandler)))

	// tournament endpoints
	mux.Handle("/tournament/", logged(http.HandlerFunc(ms.TournamentHandler)))

	// leaderboard
	mux.Handle("/leaderboard", logged(http.HandlerFunc(ms.LeaderboardHandler)))

	// operational endpoints
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
