package handlers

import (
	"log/slog"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/server/responses"
	"git.home.luguber.info/inful/projectbuilder/internal/version"
)

// RuntimeInfo reports process level facts for the health endpoint.
type RuntimeInfo interface {
	StartTime() time.Time
	RunningBuilds() int
}

// MonitoringHandlers contains monitoring-related HTTP handlers.
type MonitoringHandlers struct {
	runtime      RuntimeInfo
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates a new monitoring handlers instance.
func NewMonitoringHandlers(runtime RuntimeInfo) *MonitoringHandlers {
	return &MonitoringHandlers{
		runtime:      runtime,
		errorAdapter: ferrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleHealthCheck handles the health check endpoint.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
	}
	if h.runtime != nil {
		health.Uptime = time.Since(h.runtime.StartTime()).Seconds()
		health.RunningBuilds = h.runtime.RunningBuilds()
	}

	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		internalErr := ferrors.WrapError(err, ferrors.CategoryInternal, "failed to write health response").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}
