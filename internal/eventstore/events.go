package eventstore

import (
	"encoding/json"
	"strconv"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Event type names.
const (
	TypeBuildStarted  = "BuildStarted"
	TypeSourceFetched = "SourceFetched"
	TypeBuildFinished = "BuildFinished"
)

// BuildStarted is emitted when a build acquires the project lock.
type BuildStarted struct {
	BaseEvent
	URL string `json:"url"`
	Ref string `json:"ref"`
	// Trigger names what requested the build (api, cli, schedule).
	Trigger string `json:"trigger"`
}

// NewBuildStarted creates a BuildStarted event.
func NewBuildStarted(run project.BuildRun, url, ref, trigger string) (*BuildStarted, error) {
	ev := &BuildStarted{URL: url, Ref: ref, Trigger: trigger}
	base, err := newBase(run, TypeBuildStarted, map[string]any{
		"url":     url,
		"ref":     ref,
		"trigger": trigger,
	})
	if err != nil {
		return nil, err
	}
	ev.BaseEvent = base
	return ev, nil
}

// SourceFetched is emitted when the working copy is at the requested ref.
type SourceFetched struct {
	BaseEvent
	Commit   string        `json:"commit"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration_ms"`
}

// NewSourceFetched creates a SourceFetched event.
func NewSourceFetched(run project.BuildRun, commit, path string, duration time.Duration) (*SourceFetched, error) {
	ev := &SourceFetched{Commit: commit, Path: path, Duration: duration}
	base, err := newBase(run, TypeSourceFetched, map[string]any{
		"commit":      commit,
		"path":        path,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	ev.BaseEvent = base
	return ev, nil
}

// BuildFinished is emitted once per run with its terminal record.
type BuildFinished struct {
	BaseEvent
	Run project.BuildRun `json:"run"`
}

// NewBuildFinished creates a BuildFinished event.
func NewBuildFinished(run project.BuildRun) (*BuildFinished, error) {
	base, err := newBase(run, TypeBuildFinished, map[string]any{
		"run":         run,
		"duration_ms": run.Duration().Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	return &BuildFinished{BaseEvent: base, Run: run}, nil
}

func newBase(run project.BuildRun, eventType string, payload map[string]any) (BaseEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return BaseEvent{}, errors.EventStoreError("failed to marshal "+eventType+" payload").
			WithCause(err).
			WithContext("build_id", run.ID()).
			Build()
	}
	return BaseEvent{
		EventBuildID:   run.ID(),
		EventProjectID: run.ProjectID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   raw,
		EventMetadata:  map[string]string{"seq": strconv.FormatInt(run.Seq, 10)},
	}, nil
}
