// Package metrics defines the Prometheus instrumentation for the duel
// service. Keeping every metric on one Service struct keeps naming and
// registration consistent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service holds all the Prometheus metrics for the application.
type Service struct {
	DuelsStarted         prometheus.Counter
	DuelsFinished        prometheus.Counter
	DuelsCancelled       prometheus.Counter
	RoundsResolved       prometheus.Counter
	QueueTimeouts        prometheus.Counter
	MatchesPaired        prometheus.Counter
	BracketByes          prometheus.Counter
	TournamentsCompleted prometheus.Counter
}

// NewService creates and registers the Prometheus metrics. If no registerer
// is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		DuelsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_duels_started_total",
			Help: "The total number of duels created.",
		}),
		DuelsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_duels_finished_total",
			Help: "The total number of duels that reached a winner.",
		}),
		DuelsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_duels_cancelled_total",
			Help: "The total number of duels cancelled after both seats went silent.",
		}),
		RoundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_rounds_resolved_total",
			Help: "The total number of duel rounds resolved.",
		}),
		QueueTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_queue_timeouts_total",
			Help: "The total number of matchmaking waits that expired unmatched.",
		}),
		MatchesPaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_matches_paired_total",
			Help: "The total number of queue pairings made by the matchmaker.",
		}),
		BracketByes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_bracket_byes_total",
			Help: "The total number of round-1 byes granted in brackets.",
		}),
		TournamentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riposte_tournaments_completed_total",
			Help: "The total number of tournaments that crowned a winner.",
		}),
	}

	reg.MustRegister(
		s.DuelsStarted,
		s.DuelsFinished,
		s.DuelsCancelled,
		s.RoundsResolved,
		s.QueueTimeouts,
		s.MatchesPaired,
		s.BracketByes,
		s.TournamentsCompleted,
	)
	return s
}

// Handler returns the http.Handler serving the metrics endpoint.
func Handler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}
