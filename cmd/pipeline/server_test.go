package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alim08/coingraph/pkg/scheduler"
)

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

type fakeStates struct {
	state scheduler.State
	tasks map[string]scheduler.State
}

func (f fakeStates) State() scheduler.State              { return f.state }
func (f fakeStates) States() map[string]scheduler.State { return f.tasks }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	running := fakeStates{
		state: scheduler.StateRunning,
		tasks: map[string]scheduler.State{"fetch": scheduler.StateRunning, "push": scheduler.StateRunning},
	}

	rec := get(t, newRouter(fakeHealth{}, running), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "running", body.Scheduler)
	assert.Equal(t, map[string]string{"fetch": "running", "push": "running"}, body.Tasks)
}

func TestHealthz_Degraded(t *testing.T) {
	cases := map[string]struct {
		hc fakeHealth
		sr fakeStates
	}{
		"store down": {fakeHealth{errors.New("connection refused")}, fakeStates{state: scheduler.StateRunning}},
		"stopping":   {fakeHealth{}, fakeStates{state: scheduler.StateStopping}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			rec := get(t, newRouter(c.hc, c.sr), "/healthz")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			var body healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "degraded", body.Status)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newRouter(fakeHealth{}, fakeStates{state: scheduler.StateRunning}), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pipeline_fetch_samples_total")
}
