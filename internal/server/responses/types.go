// Package responses defines API response types used by osforge HTTP handlers.
package responses

import (
	"time"

	"git.home.luguber.info/inful/osforge/internal/store"
)

// BuildAcceptedResponse acknowledges an accepted submission.
type BuildAcceptedResponse struct {
	BuildID string `json:"buildId"`
}

// BuildStatusResponse is the polling contract: current status plus the
// always-growing log and the typed artifacts.
type BuildStatusResponse struct {
	BuildID     string           `json:"buildId"`
	Status      string           `json:"status"`
	Logs        []store.LogEntry `json:"logs"`
	Artifacts   []store.Artifact `json:"artifacts"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// BuildSummary is one row of the build list.
type BuildSummary struct {
	BuildID      string     `json:"buildId"`
	Status       string     `json:"status"`
	Base         string     `json:"base"`
	Architecture string     `json:"architecture"`
	Artifacts    int        `json:"artifacts"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// BuildListResponse lists all known builds.
type BuildListResponse struct {
	Builds []BuildSummary `json:"builds"`
	Count  int            `json:"count"`
}

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
}

// DaemonStatusResponse represents the daemon's operational status.
type DaemonStatusResponse struct {
	Status           string    `json:"status"`
	Uptime           float64   `json:"uptime"`
	StartTime        time.Time `json:"start_time"`
	ActiveBuilds     int       `json:"active_builds"`
	ConcurrentBuilds int       `json:"concurrent_builds"`
	Version          string    `json:"version"`
}
