package orchestrator

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/projectbuilder/internal/buildtool"
	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/git"
	"git.home.luguber.info/inful/projectbuilder/internal/metrics"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
	"git.home.luguber.info/inful/projectbuilder/internal/tracker"
	"git.home.luguber.info/inful/projectbuilder/internal/workspace"
)

// ProjectStore persists projects and their terminal runs.
type ProjectStore interface {
	Create(ctx context.Context, p *project.Project) error
	Get(ctx context.Context, id string) (*project.Project, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter project.Filter, page project.Page) (project.PageResult, error)
	Summaries(ctx context.Context) ([]project.Summary, error)
	SetBuildStatus(ctx context.Context, id string, status project.Status, commit string, at time.Time) error
	SaveRun(ctx context.Context, run project.BuildRun) error
	Runs(ctx context.Context, projectID string, limit int) ([]project.BuildRun, error)
	Run(ctx context.Context, projectID string, seq int64) (project.BuildRun, bool, error)
	LastSeqs(ctx context.Context) (map[string]int64, error)
}

// SourceFetcher brings a working copy to a ref.
type SourceFetcher interface {
	Fetch(ctx context.Context, req git.FetchRequest) (string, error)
}

// Builder runs the build tool of a working copy.
type Builder interface {
	Build(ctx context.Context, workingCopy string, declared project.ToolKind, log io.Writer) (buildtool.Output, error)
}

// limitedBuilder is a Builder that reports its tool timeout and grace period.
type limitedBuilder interface {
	Limits() (timeout, grace time.Duration)
}

// DefaultFetchTimeout bounds a source fetch when Deps leaves it unset.
const DefaultFetchTimeout = 10 * time.Minute

// ArtifactLister lists a build output directory.
type ArtifactLister interface {
	List(dir string) ([]project.ArtifactEntry, error)
}

// LogSink stores build output per run.
type LogSink interface {
	Open(projectID string, seq int64) (io.WriteCloser, string, error)
	Read(ref string) (io.ReadCloser, error)
	RemoveProject(projectID string) error
}

// EventRecorder receives build lifecycle events.
type EventRecorder interface {
	Record(ctx context.Context, ev eventstore.Event) error
}

// EventQuerier reads recorded events.
type EventQuerier interface {
	GetByBuildID(ctx context.Context, buildID string) ([]eventstore.Event, error)
	GetByProject(ctx context.Context, projectID string, limit int) ([]eventstore.Event, error)
}

// Deps are the collaborators every orchestrator needs.
type Deps struct {
	Store     ProjectStore
	Fetcher   SourceFetcher
	Builder   Builder
	Scanner   ArtifactLister
	Logs      LogSink
	Workspace *workspace.Manager
	Tracker   *tracker.Tracker
	// HistorySize bounds the runs restored per project; zero uses the tracker default.
	HistorySize int
	// FetchTimeout bounds the fetch stage; zero uses DefaultFetchTimeout.
	FetchTimeout time.Duration
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	store     ProjectStore
	fetcher   SourceFetcher
	builder   Builder
	scanner   ArtifactLister
	logs      LogSink
	ws        *workspace.Manager
	tracker   *tracker.Tracker
	history   int
	recorders []EventRecorder
	events    EventQuerier
	metrics   metrics.Recorder
	now       func() time.Time
	newID     func() string

	fetchTimeout atomic.Int64
}

// New validates deps and returns an orchestrator without event recorders and
// with metrics disabled.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, ferrors.ConfigError("orchestrator requires a project store").Build()
	case deps.Fetcher == nil:
		return nil, ferrors.ConfigError("orchestrator requires a source fetcher").Build()
	case deps.Builder == nil:
		return nil, ferrors.ConfigError("orchestrator requires a builder").Build()
	case deps.Scanner == nil:
		return nil, ferrors.ConfigError("orchestrator requires an artifact scanner").Build()
	case deps.Logs == nil:
		return nil, ferrors.ConfigError("orchestrator requires a log sink").Build()
	case deps.Workspace == nil:
		return nil, ferrors.ConfigError("orchestrator requires a workspace").Build()
	}
	tr := deps.Tracker
	if tr == nil {
		tr = tracker.New(deps.HistorySize)
	}
	history := deps.HistorySize
	if history <= 0 {
		history = tracker.DefaultHistorySize
	}
	o := &Orchestrator{
		store:   deps.Store,
		fetcher: deps.Fetcher,
		builder: deps.Builder,
		scanner: deps.Scanner,
		logs:    deps.Logs,
		ws:      deps.Workspace,
		tracker: tr,
		history: history,
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	o.SetFetchTimeout(deps.FetchTimeout)
	// Other processes sharing the workspace and store build the same projects.
	tr.WithProcessLocker(deps.Workspace).WithSync(o.syncProject)
	return o, nil
}

// SetFetchTimeout changes the fetch stage bound for builds started afterwards.
// Zero or less restores DefaultFetchTimeout.
func (o *Orchestrator) SetFetchTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultFetchTimeout
	}
	o.fetchTimeout.Store(int64(d))
}

// FetchTimeout returns the current fetch stage bound.
func (o *Orchestrator) FetchTimeout() time.Duration { return time.Duration(o.fetchTimeout.Load()) }

// syncProject reloads numbering and history from the store once the project
// is locked, so runs recorded by another process are never renumbered.
func (o *Orchestrator) syncProject(ctx context.Context, projectID string) (int64, []project.BuildRun, error) {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return 0, nil, err
	}
	runs, err := o.store.Runs(ctx, projectID, o.history)
	if err != nil {
		return 0, nil, err
	}
	var lastSeq int64
	if len(runs) > 0 {
		lastSeq = runs[0].Seq
	}
	return lastSeq, runs, nil
}

// WithRecorders adds event recorders such as the event store and the notifier.
func (o *Orchestrator) WithRecorders(recorders ...EventRecorder) *Orchestrator {
	for _, r := range recorders {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
	return o
}

// WithEventQuerier enables Events.
func (o *Orchestrator) WithEventQuerier(q EventQuerier) *Orchestrator {
	o.events = q
	return o
}

// WithMetrics sets the metrics recorder.
func (o *Orchestrator) WithMetrics(r metrics.Recorder) *Orchestrator {
	if r != nil {
		o.metrics = r
	}
	return o
}

// Tracker exposes the build state tracker, e.g. for shutdown.
func (o *Orchestrator) Tracker() *tracker.Tracker { return o.tracker }

// Restore seeds sequence numbers and history from the store so numbering
// continues after a restart.
func (o *Orchestrator) Restore(ctx context.Context) error {
	seqs, err := o.store.LastSeqs(ctx)
	if err != nil {
		return err
	}
	for id, seq := range seqs {
		runs, err := o.store.Runs(ctx, id, o.history)
		if err != nil {
			return err
		}
		o.tracker.Seed(id, seq, runs)
	}
	return nil
}
