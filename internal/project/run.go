package project

import (
	"fmt"
	"time"
)

// BuildRun is the immutable record of one terminal build attempt.
type BuildRun struct {
	ProjectID  string    `json:"project_id"`
	Seq        int64     `json:"seq"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     Status    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Commit     string    `json:"commit,omitempty"`
	Tool       ToolKind  `json:"tool,omitempty"`
	LogRef     string    `json:"log_ref,omitempty"`
	OutputDir  string    `json:"output_dir,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// RunID renders the log sink key for a run.
func RunID(projectID string, seq int64) string {
	return fmt.Sprintf("%s#%d", projectID, seq)
}

// ID returns the run identity.
func (r BuildRun) ID() string { return RunID(r.ProjectID, r.Seq) }

// Duration is zero for runs that never finished.
func (r BuildRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ArtifactEntry describes one path below a build output directory.
type ArtifactEntry struct {
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	IsDir   bool      `json:"is_dir"`
}
