package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestHealth_Statuses(t *testing.T) {
	tests := []struct {
		name        string
		checker     *HealthChecker
		wantStatus  string
		wantReadyOK bool
	}{
		{"all up", NewHealthChecker().Add("database", up, true, 0).Add("redis", up, false, 0), "healthy", true},
		{"optional down", NewHealthChecker().Add("database", up, true, 0).Add("redis", down, false, 0), "degraded", true},
		{"critical down", NewHealthChecker().Add("database", down, true, 0).Add("redis", up, false, 0), "unhealthy", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.checker.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			var hs HealthStatus
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&hs))
			assert.Equal(t, tt.wantStatus, hs.Status)
			assert.Len(t, hs.Checks, 2)

			rec = httptest.NewRecorder()
			tt.checker.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if tt.wantReadyOK {
				assert.Equal(t, http.StatusOK, rec.Code)
			} else {
				assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			}
		})
	}
}

func TestHealth_DownMessage(t *testing.T) {
	checks, _ := NewHealthChecker().Add("redis", down, false, 0).run(context.Background())
	assert.Equal(t, "down", checks["redis"].Status)
	assert.Contains(t, checks["redis"].Message, "connection refused")
}
