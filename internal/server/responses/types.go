// Package responses defines the JSON bodies returned by the HTTP API.
package responses

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// HealthResponse represents the health check API response.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	Uptime        float64   `json:"uptime"`
	RunningBuilds int       `json:"running_builds"`
}

// BuildResponse carries the terminal run of a build request. Error and Code
// are set when the run ended with a fetch, layout or process fault.
type BuildResponse struct {
	Run   project.BuildRun `json:"run"`
	Error string           `json:"error,omitempty"`
	Code  string           `json:"code,omitempty"`
}

// CancelResponse reports whether a running build was signalled.
type CancelResponse struct {
	ProjectID string `json:"project_id"`
	Cancelled bool   `json:"cancelled"`
}

// FilesResponse lists the artifacts of a project.
type FilesResponse struct {
	ProjectID string                  `json:"project_id"`
	Files     []project.ArtifactEntry `json:"files"`
}

// RunsResponse lists build runs newest first.
type RunsResponse struct {
	ProjectID string             `json:"project_id"`
	Running   *project.BuildRun  `json:"running,omitempty"`
	Runs      []project.BuildRun `json:"runs"`
}

// EventResponse is one recorded lifecycle event.
type EventResponse struct {
	Type      string            `json:"type"`
	BuildID   string            `json:"build_id"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// EventsResponse lists the events of one run.
type EventsResponse struct {
	BuildID string          `json:"build_id"`
	Events  []EventResponse `json:"events"`
}

// ProjectEventsResponse lists the newest events of a project, newest first.
type ProjectEventsResponse struct {
	ProjectID string          `json:"project_id"`
	Events    []EventResponse `json:"events"`
}

// DeleteResponse confirms a deletion.
type DeleteResponse struct {
	ProjectID string `json:"project_id"`
	Deleted   bool   `json:"deleted"`
}
