// Package metrics exposes worker counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is what the workers record. Service is the Prometheus
// implementation; Nop discards everything.
type Metrics interface {
	ObserveMatch(outcome string, seconds float64)
	IncRoundsPlayed(n int)
	IncMatchError(kind string)
	IncResultRecorded(ladder bool)
	IncResultFailed()
	IncLeaseContended()
}

var _ Metrics = (*Service)(nil)

type Service struct {
	MatchDuration   *prometheus.HistogramVec
	RoundsPlayed    prometheus.Counter
	MatchErrors     *prometheus.CounterVec
	ResultsRecorded *prometheus.CounterVec
	ResultsFailed   prometheus.Counter
	LeaseContended  prometheus.Counter
}

// NewMetricsHandler serves the given gatherer, or the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the collectors with registerer, or with
// the default registerer when none is given.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		MatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pokerarena_match_duration_seconds",
			Help:    "Wall time of a match from acquisition to outcome.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		RoundsPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokerarena_rounds_played_total",
			Help: "Rounds played to completion across all matches.",
		}),
		MatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pokerarena_match_errors_total",
			Help: "Matches that ended with an error, by error kind.",
		}, []string{"kind"}),
		ResultsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pokerarena_results_recorded_total",
			Help: "Result records persisted, split into ladder and validation games.",
		}, []string{"type"}),
		ResultsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokerarena_results_failed_total",
			Help: "Outcome messages that could not be persisted.",
		}),
		LeaseContended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokerarena_lease_contended_total",
			Help: "Match requests skipped because another worker holds the lease.",
		}),
	}

	reg.MustRegister(
		s.MatchDuration,
		s.RoundsPlayed,
		s.MatchErrors,
		s.ResultsRecorded,
		s.ResultsFailed,
		s.LeaseContended,
	)
	return s
}

func (s *Service) ObserveMatch(outcome string, seconds float64) {
	s.MatchDuration.WithLabelValues(outcome).Observe(seconds)
}

func (s *Service) IncRoundsPlayed(n int) { s.RoundsPlayed.Add(float64(n)) }

func (s *Service) IncMatchError(kind string) { s.MatchErrors.WithLabelValues(kind).Inc() }

func (s *Service) IncResultRecorded(ladder bool) {
	t := "validation"
	if ladder {
		t = "ladder"
	}
	s.ResultsRecorded.WithLabelValues(t).Inc()
}

func (s *Service) IncResultFailed() { s.ResultsFailed.Inc() }

func (s *Service) IncLeaseContended() { s.LeaseContended.Inc() }

type Nop struct{}

func (Nop) ObserveMatch(string, float64) {}
func (Nop) IncRoundsPlayed(int)          {}
func (Nop) IncMatchError(string)         {}
func (Nop) IncResultRecorded(bool)       {}
func (Nop) IncResultFailed()             {}
func (Nop) IncLeaseContended()           {}
