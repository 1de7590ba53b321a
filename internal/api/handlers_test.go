package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/enginetest"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/pkg/distlock"
	repomem "github.com/ignite/perf-brain/internal/repository/memory"
)

func clock() func() time.Time {
	var mu sync.Mutex
	t := enginetest.AsOf
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func setupServer(t *testing.T) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	e, err := engine.New(
		repomem.NewReader(enginetest.Dataset("org-1")),
		repomem.NewStore(),
		distlock.NewLocalFactory(),
		config.DefaultBrainConfig(),
		engine.WithClock(clock()),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)
	require.NoError(t, err)

	health := NewHealthChecker().Add("store", func(context.Context) error { return nil }, true, 0)
	srv := httptest.NewServer(SetupRoutes(NewHandlers(e), health, nil, reg))
	t.Cleanup(srv.Close)
	return srv, reg
}

func do(t *testing.T, method, url string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestBrainAPI_CycleThenRead(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL + "/api/orgs/org-1/brain"

	resp, _ := do(t, http.MethodGet, base)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, http.MethodPost, base+"/cycles?trigger=onboarding&persona=operator")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "onboarding", body["trigger"])
	assert.Equal(t, "operator", body["persona"])
	assert.EqualValues(t, 1, body["version"])

	resp, _ = do(t, http.MethodPost, base+"/cycles")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["version"])
	assert.Equal(t, "manual", body["trigger"])

	resp, body = do(t, http.MethodGet, base+"/history?limit=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["count"])
	items := body["items"].([]any)
	assert.EqualValues(t, 2, items[0].(map[string]any)["version"])

	resp, body = do(t, http.MethodGet, base+"/actions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	actions := body["actions"].([]any)
	require.NotEmpty(t, actions)
	assert.LessOrEqual(t, len(actions), 3)

	resp, body = do(t, http.MethodGet, base+"/narrative?persona=analyst")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "analyst", body["persona"])
	assert.NotEmpty(t, body["narrative"])
}

func TestBrainAPI_BadRequests(t *testing.T) {
	srv, _ := setupServer(t)
	base := srv.URL + "/api/orgs/org-1/brain"

	resp, body := do(t, http.MethodPost, base+"/cycles?persona=cfo")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", body["code"])

	resp, _ = do(t, http.MethodPost, base+"/cycles?trigger=hourly")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, base+"/narrative")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// stubBrain returns fixed errors.
type stubBrain struct {
	err error
}

func (s stubBrain) RunCycle(context.Context, engine.CycleRequest) (*face.BrainState, error) {
	return nil, s.err
}
func (s stubBrain) Latest(context.Context, string) (*face.BrainState, error) { return nil, s.err }
func (s stubBrain) History(context.Context, string, int) ([]face.StateSummary, error) {
	return nil, s.err
}
func (s stubBrain) Actions(context.Context, string) ([]face.ActionPayload, error) {
	return nil, s.err
}
func (s stubBrain) Narrative(context.Context, string, face.Persona) (string, error) {
	return "", s.err
}

func TestRunCycle_ErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		wantCode string
	}{
		{fmt.Errorf("%w: org-1", domain.ErrCycleInProgress), http.StatusConflict, "cycle_in_progress"},
		{fmt.Errorf("%w: exceeded 2m0s", domain.ErrCycleTimeout), http.StatusGatewayTimeout, "cycle_timeout"},
		{fmt.Errorf("%w: save state: disk full", domain.ErrPersistence), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			h := NewHandlers(stubBrain{err: tt.err})
			srv := httptest.NewServer(SetupRoutes(h, NewHealthChecker(), nil, prometheus.NewRegistry()))
			defer srv.Close()

			resp, body := do(t, http.MethodPost, srv.URL+"/api/orgs/org-1/brain/cycles")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotContains(t, body["error"], "disk full")
		})
	}
}

func TestReadError_Internal(t *testing.T) {
	h := NewHandlers(stubBrain{err: errors.New("connection reset")})
	rec := httptest.NewRecorder()
	h.GetActions(rec, httptest.NewRequest(http.MethodGet, "/api/orgs/org-1/brain/actions", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupServer(t)
	resp, _ := do(t, http.MethodPost, srv.URL+"/api/orgs/org-1/brain/cycles?trigger=scheduled")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	assert.Contains(t, readAll(t, mresp), `brain_cycles_total{outcome="success",trigger="scheduled"} 1`)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	_, err := io.Copy(&sb, resp.Body)
	require.NoError(t, err)
	return sb.String()
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := setupServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/orgs/org-1/brain", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
