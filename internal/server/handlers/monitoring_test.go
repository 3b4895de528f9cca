package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/projectbuilder/internal/server/responses"
)

type stubRuntime struct{ running int }

func (s stubRuntime) StartTime() time.Time { return time.Now().Add(-time.Hour) }
func (s stubRuntime) RunningBuilds() int   { return s.running }

func TestHealthCheck(t *testing.T) {
	h := NewMonitoringHandlers(stubRuntime{running: 2})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HandleHealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	resp := decode[responses.HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 2, resp.RunningBuilds)
	assert.GreaterOrEqual(t, resp.Uptime, 3600.0)
}

func TestHealthCheckWithoutRuntime(t *testing.T) {
	h := NewMonitoringHandlers(nil)

	rec := httptest.NewRecorder()
	h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health?pretty=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n  \"status\": \"healthy\"")
}
