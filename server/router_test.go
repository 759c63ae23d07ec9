package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pokerarena/server/metrics"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHealthz(t *testing.T) {
	code, body := get(t, Router(prometheus.NewRegistry(), nil), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"ok": true}`, body)
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	deps := map[string]Pinger{
		"postgres": PingFunc(func(context.Context) error { return nil }),
		"redis":    PingFunc(func(context.Context) error { return errors.New("connection refused") }),
		"unused":   nil,
	}
	code, body := get(t, Router(prometheus.NewRegistry(), deps), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	var resp struct {
		OK     bool              `json:"ok"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "connection refused"}, resp.Checks)
}

func TestReadyzWithoutDependencies(t *testing.T) {
	code, _ := get(t, Router(prometheus.NewRegistry(), nil), "/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewService(reg)
	m.IncMatchError("TIMEOUT")

	code, body := get(t, Router(reg, nil), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `pokerarena_match_errors_total{kind="TIMEOUT"} 1`)
}
