// internal/jobs/sweeper.go
package jobs

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/riposte-game/riposte/internal/bracket"
	"github.com/riposte-game/riposte/internal/game"
)

const (
	// SweepInterval is how often terminal sessions are reaped.
	SweepInterval = 1 * time.Minute
	// DuelRetention is how long a terminal duel stays queryable.
	DuelRetention = 5 * time.Minute
	// TournamentRetention is how long a completed tournament stays queryable.
	TournamentRetention = 1 * time.Hour
)

// StartSweeper runs the periodic reaper for terminal duels and completed
// tournaments. Returns the scheduler so the caller can shut it down.
func StartSweeper(duels *game.DuelStore, brackets *bracket.Engine) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(SweepInterval),
		gocron.NewTask(func() {
			if n := duels.ReapTerminal(DuelRetention); n > 0 {
				log.Printf("[Sweeper] reaped %d terminal duels", n)
			}
			if n := brackets.ReapCompleted(TournamentRetention); n > 0 {
				log.Printf("[Sweeper] reaped %d completed tournaments", n)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
