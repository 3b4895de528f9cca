package orchestrator

import (
	"context"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/projectbuilder/internal/artifact"
	"git.home.luguber.info/inful/projectbuilder/internal/buildlog"
	"git.home.luguber.info/inful/projectbuilder/internal/buildtool"
	"git.home.luguber.info/inful/projectbuilder/internal/config"
	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	gitfetch "git.home.luguber.info/inful/projectbuilder/internal/git"
	"git.home.luguber.info/inful/projectbuilder/internal/metrics"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
	"git.home.luguber.info/inful/projectbuilder/internal/retry"
	"git.home.luguber.info/inful/projectbuilder/internal/store"
	"git.home.luguber.info/inful/projectbuilder/internal/testutil/testutils"
	"git.home.luguber.info/inful/projectbuilder/internal/workspace"
)

type harness struct {
	orch     *Orchestrator
	store    *store.SQLStore
	ws       *workspace.Manager
	events   *eventLog
	counters *countingMetrics
}

func newHarness(t *testing.T, fetcher SourceFetcher, builder Builder) *harness {
	t.Helper()
	st, err := store.NewSQLite(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return newHarnessWithStore(t, st, fetcher, builder)
}

func newHarnessWithStore(t *testing.T, st *store.SQLStore, fetcher SourceFetcher, builder Builder) *harness {
	t.Helper()
	return newHarnessAt(t, st, t.TempDir(), fetcher, builder)
}

// newHarnessAt builds an orchestrator over a workspace root that other
// harnesses may share, the way a daemon and a CLI share one data dir.
func newHarnessAt(t *testing.T, st *store.SQLStore, root string, fetcher SourceFetcher, builder Builder) *harness {
	t.Helper()
	deps := newDeps(t, st, root, fetcher, builder)
	o, err := New(deps)
	require.NoError(t, err)

	h := &harness{orch: o, store: st, ws: deps.Workspace, events: &eventLog{}, counters: &countingMetrics{}}
	o.WithRecorders(h.events).WithMetrics(h.counters)
	return h
}

func newDeps(t *testing.T, st ProjectStore, root string, fetcher SourceFetcher, builder Builder) Deps {
	t.Helper()
	ws := workspace.NewManager(root)
	require.NoError(t, ws.Create())
	sink, err := buildlog.NewSink(ws.LogsDir())
	require.NoError(t, err)

	if fetcher == nil {
		fetcher = gitfetch.NewFetcher(retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 0), 0)
	}
	if builder == nil {
		builder = buildtool.NewAdapter(nil, time.Minute, time.Second)
	}
	return Deps{
		Store:     st,
		Fetcher:   fetcher,
		Builder:   builder,
		Scanner:   artifact.NewScanner(artifact.DefaultMaxDepth),
		Logs:      sink,
		Workspace: ws,
	}
}

// failingRunStore loses every build run it is asked to save.
type failingRunStore struct {
	ProjectStore
	err error
}

func (s failingRunStore) SaveRun(context.Context, project.BuildRun) error { return s.err }

func (h *harness) create(t *testing.T, name, url string) *project.Project {
	t.Helper()
	p, err := h.orch.Create(t.Context(), project.Spec{Name: name, URL: url, Ref: "master"})
	require.NoError(t, err)
	return p
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("build scripts need a POSIX shell")
	}
}

// newSourceRepo commits files into a fresh repository and returns its path.
func newSourceRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	return testutils.SourceRepo(t, files)
}

// staticFetcher pretends every fetch succeeds at the same commit.
type staticFetcher struct {
	calls atomic.Int32
}

func (f *staticFetcher) Fetch(_ context.Context, req gitfetch.FetchRequest) (string, error) {
	f.calls.Add(1)
	if err := os.MkdirAll(req.Dir, 0o750); err != nil {
		return "", err
	}
	return "0123456789abcdef0123456789abcdef01234567", nil
}

// gateBuilder blocks every build until released or cancelled.
type gateBuilder struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	code    int
}

func newGateBuilder() *gateBuilder {
	return &gateBuilder{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *gateBuilder) Build(ctx context.Context, wc string, _ project.ToolKind, log io.Writer) (buildtool.Output, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	out := buildtool.Output{Kind: project.ToolScript, OutputDir: buildtool.OutputDir(wc, project.ToolScript), ExitCode: -1}
	_, _ = io.WriteString(log, "gate build\n")
	select {
	case <-b.release:
		out.ExitCode = b.code
		return out, nil
	case <-ctx.Done():
		return out, project.ErrBuildProcessFault.WithCause(ctx.Err())
	}
}

func (b *gateBuilder) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("build did not start")
	}
}

// countingBuilder records calls and succeeds immediately.
type countingBuilder struct {
	calls atomic.Int32
}

func (b *countingBuilder) Build(context.Context, string, project.ToolKind, io.Writer) (buildtool.Output, error) {
	b.calls.Add(1)
	return buildtool.Output{Kind: project.ToolScript, ExitCode: 0}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []eventstore.Event
}

func (l *eventLog) Record(_ context.Context, ev eventstore.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type())
	}
	return out
}

type countingMetrics struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	outcomes map[string]int
	rejected map[metrics.RejectReason]int
	running  int
}

func (c *countingMetrics) IncBuildOutcome(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func (c *countingMetrics) IncRejected(reason metrics.RejectReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected == nil {
		c.rejected = map[metrics.RejectReason]int{}
	}
	c.rejected[reason]++
}

func (c *countingMetrics) AddRunning(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running += delta
}

func (c *countingMetrics) snapshot() (map[string]int, map[metrics.RejectReason]int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcomes := map[string]int{}
	for k, v := range c.outcomes {
		outcomes[k] = v
	}
	rejected := map[metrics.RejectReason]int{}
	for k, v := range c.rejected {
		rejected[k] = v
	}
	return outcomes, rejected, c.running
}
