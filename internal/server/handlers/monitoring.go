package handlers

import (
	"net/http"
	"time"

	"git.home.luguber.info/inful/osforge/internal/server/responses"
	"git.home.luguber.info/inful/osforge/internal/version"
)

// Runtime exposes the daemon state the monitoring endpoints report.
type Runtime interface {
	GetStatus() string
	StartTime() time.Time
	ActiveBuilds() int
	ConcurrentBuilds() int
}

// MonitoringHandlers serves health and daemon status endpoints.
type MonitoringHandlers struct {
	runtime Runtime
}

// NewMonitoringHandlers creates monitoring endpoint handlers.
func NewMonitoringHandlers(runtime Runtime) *MonitoringHandlers {
	return &MonitoringHandlers{runtime: runtime}
}

// Health handles GET /api/health.
func (h *MonitoringHandlers) Health(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, responses.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.runtime.StartTime()).Seconds(),
	})
}

// DaemonStatus handles GET /api/status.
func (h *MonitoringHandlers) DaemonStatus(w http.ResponseWriter, r *http.Request) {
	_ = writeJSONPretty(w, r, http.StatusOK, responses.DaemonStatusResponse{
		Status:           h.runtime.GetStatus(),
		Uptime:           time.Since(h.runtime.StartTime()).Seconds(),
		StartTime:        h.runtime.StartTime(),
		ActiveBuilds:     h.runtime.ActiveBuilds(),
		ConcurrentBuilds: h.runtime.ConcurrentBuilds(),
		Version:          version.Version,
	})
}
