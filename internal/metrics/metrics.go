// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/artist-check/internal/model"
)

var (
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artistcheck_backend_requests_total",
			Help: "Requests made to the performance-records backend",
		},
		[]string{"op", "code"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "artistcheck_backend_request_duration_seconds",
			Help:    "Latency of backend requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	Recomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artistcheck_roster_recomputes_total",
			Help: "Roster score recomputations by trigger",
		},
		[]string{"trigger"},
	)

	RosterAssessments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "artistcheck_roster_assessments",
			Help: "Roster entries by score state",
		},
		[]string{"state"},
	)

	ArtistFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artistcheck_artist_fetches_total",
			Help: "Artist show and pricing fetches by outcome",
		},
		[]string{"outcome"},
	)
)

// ObserveBackend records one backend attempt. status 0 means no response
// arrived. Its signature matches backend.Observer.
func ObserveBackend(op string, status int, elapsed time.Duration, err error) {
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	BackendRequests.WithLabelValues(op, code).Inc()
	BackendDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

var trackedStates = []model.ScoreState{
	model.ScoreStateScored,
	model.ScoreStatePending,
	model.ScoreStateNotInDatabase,
	model.ScoreStateFetchFailed,
}

// SetRoster publishes the roster composition.
func SetRoster(entries []model.ArtistAssessment) {
	counts := make(map[model.ScoreState]int, len(trackedStates))
	for _, a := range entries {
		counts[a.State]++
	}
	for _, s := range trackedStates {
		RosterAssessments.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
