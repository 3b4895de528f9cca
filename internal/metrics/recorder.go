package metrics

import "time"

// Stage names used for stage duration metrics.
const (
	StageFetch = "fetch"
	StageBuild = "build"
	StageScan  = "scan"
)

// RejectReason labels build or delete requests refused because of a held lock.
type RejectReason string

const (
	RejectInProgress RejectReason = "in_progress"
	RejectBusy       RejectReason = "busy"
)

// Recorder defines observability hooks for builds. All methods must be safe to
// call concurrently.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveBuildDuration(tool string, d time.Duration)
	IncBuildOutcome(outcome string) // outcome: SUCCESS|FAILURE|CANCELLED
	IncRejected(reason RejectReason)
	AddRunning(delta int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string)                     {}
func (NoopRecorder) IncRejected(RejectReason)                   {}
func (NoopRecorder) AddRunning(int)                             {}
