package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	NewMetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestServiceCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewService(reg)

	s.IncRoundsPlayed(7)
	s.IncMatchError("TIMEOUT")
	s.IncMatchError("TIMEOUT")
	s.IncResultRecorded(true)
	s.IncResultRecorded(false)
	s.IncLeaseContended()
	s.ObserveMatch("score_changed", 1.5)

	body := scrape(t, reg)
	assert.Contains(t, body, "pokerarena_rounds_played_total 7")
	assert.Contains(t, body, `pokerarena_match_errors_total{kind="TIMEOUT"} 2`)
	assert.Contains(t, body, `pokerarena_results_recorded_total{type="ladder"} 1`)
	assert.Contains(t, body, `pokerarena_results_recorded_total{type="validation"} 1`)
	assert.Contains(t, body, "pokerarena_lease_contended_total 1")
	assert.Contains(t, body, `pokerarena_match_duration_seconds_count{outcome="score_changed"} 1`)
}

func TestNopSatisfiesMetrics(t *testing.T) {
	var m Metrics = Nop{}
	m.IncRoundsPlayed(3)
	m.ObserveMatch("x", 1)
}
