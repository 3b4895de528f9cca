package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
	"git.home.luguber.info/inful/projectbuilder/internal/testutil/testutils"
)

func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	raw := fmt.Sprintf(`
server:
  addr: "127.0.0.1:0"
workspace:
  root: %q
events:
  enabled: true
%s`, t.TempDir(), extra)
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	return cfg
}

func TestAssemble(t *testing.T) {
	cfg := testConfig(t, "")
	svc, err := Assemble(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	require.NotNil(t, svc.Orchestrator)
	require.NotNil(t, svc.Events)
	assert.Nil(t, svc.Notifier)
	assert.DirExists(t, svc.Workspace.LogsDir())

	p, err := svc.Orchestrator.Create(t.Context(), project.Spec{Name: "api", URL: "https://example.com/api.git"})
	require.NoError(t, err)
	files, err := svc.Orchestrator.Filelist(t.Context(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestAssembleRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Store.Driver = "oracle"
	_, err := Assemble(t.Context(), cfg)
	require.Error(t, err)
}

func TestApplyBuildConfig(t *testing.T) {
	cfg := testConfig(t, "")
	svc, err := Assemble(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	b := cfg.Build
	b.Timeout = "90s"
	b.GracePeriod = "3s"
	b.FetchTimeout = "45s"
	b.MaxScanDepth = 7
	require.NoError(t, svc.ApplyBuildConfig(b))
	assert.Equal(t, 45*time.Second, svc.Orchestrator.FetchTimeout())

	timeout, grace := svc.Adapter.Limits()
	assert.Equal(t, 90*time.Second, timeout)
	assert.Equal(t, 3*time.Second, grace)
	assert.Equal(t, 7, svc.Scanner.MaxDepth())

	bad := b
	bad.Timeout = "soon"
	bad.MaxScanDepth = 2
	require.Error(t, svc.ApplyBuildConfig(bad))
	assert.Equal(t, 7, svc.Scanner.MaxDepth(), "rejected config must not apply")
}

type fakeRebuilder struct {
	ids    []string
	errs   map[string]error
	called []string
}

func (f *fakeRebuilder) Select(context.Context) ([]project.Summary, error) {
	out := make([]project.Summary, 0, len(f.ids))
	for _, id := range f.ids {
		out = append(out, project.Summary{ID: id, Name: id})
	}
	return out, nil
}

func (f *fakeRebuilder) Build(_ context.Context, id string) (project.BuildRun, error) {
	f.called = append(f.called, id)
	return project.BuildRun{ProjectID: id, Seq: 1}, f.errs[id]
}

func TestRebuildAll(t *testing.T) {
	f := &fakeRebuilder{
		ids: []string{"a", "b", "c", "d"},
		errs: map[string]error{
			"b": project.InProgress("b"),
			"c": project.ErrSourceFetch.WithCause(io.ErrUnexpectedEOF),
			"d": project.NotFound("d"),
		},
	}
	built, skipped := rebuildAll(t.Context(), f)
	assert.Equal(t, 2, built)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, []string{"a", "b", "c", "d"}, f.called)
}

func TestRebuildAllStopsWhenCancelled(t *testing.T) {
	f := &fakeRebuilder{ids: []string{"a", "b"}}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	built, _ := rebuildAll(ctx, f)
	assert.Zero(t, built)
	assert.Empty(t, f.called)
}

func TestScheduler_ScheduleEvery(t *testing.T) {
	t.Run("returns job id for valid interval", func(t *testing.T) {
		s, err := NewScheduler()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop() })

		id, err := s.ScheduleEvery("test", 10*time.Second, func() {})
		require.NoError(t, err)
		require.NotEmpty(t, id)
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		s, err := NewScheduler()
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop() })

		_, err = s.ScheduleEvery("test", 0, func() {})
		require.Error(t, err)
	})
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testConfig(t, `schedule:
  rebuild_interval: 1h
`)
	d, err := New(t.Context(), cfg, "")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, d.GetStatus())

	require.NoError(t, d.Start(t.Context()))
	assert.Equal(t, StatusRunning, d.GetStatus())
	require.Error(t, d.Start(t.Context()))

	for _, path := range []string{"/health", cfg.Metrics.Path, "/api/projects"} {
		resp, err := http.Get("http://" + d.Addr() + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
	assert.Zero(t, d.RunningBuilds())
	assert.False(t, d.StartTime().IsZero())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.Equal(t, StatusStopped, d.GetStatus())
	require.NoError(t, d.Stop(ctx))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d, err := New(t.Context(), testConfig(t, ""), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.GetStatus() == StatusRunning }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.Equal(t, StatusStopped, d.GetStatus())
}

func TestAssembledInstancesShareBuildLock(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("build scripts need a POSIX shell")
	}
	marks := t.TempDir()
	started := filepath.Join(marks, "started")
	release := filepath.Join(marks, "release")
	src := testutils.SourceRepo(t, map[string]string{"build.sh": fmt.Sprintf(
		"touch %q\nwhile [ ! -f %q ]; do sleep 0.05; done\nmkdir -p dist\necho ok > dist/app.txt\n",
		started, release)})

	cfg := testConfig(t, "")
	server, err := Assemble(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	cli, err := Assemble(t.Context(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	p, err := server.Orchestrator.Create(t.Context(), project.Spec{Name: "shared", URL: src, Ref: "master"})
	require.NoError(t, err)

	type result struct {
		run project.BuildRun
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := server.Orchestrator.Build(t.Context(), p.ID)
		done <- result{run, err}
	}()
	require.Eventually(t, func() bool {
		_, err := os.Stat(started)
		return err == nil
	}, 10*time.Second, 10*time.Millisecond)

	_, err = cli.Orchestrator.Build(t.Context(), p.ID)
	require.ErrorIs(t, err, project.ErrBuildAlreadyInProgress)
	require.ErrorIs(t, cli.Orchestrator.Delete(t.Context(), p.ID), project.ErrProjectBusy)

	require.NoError(t, os.WriteFile(release, nil, 0o600))
	var first result
	select {
	case first = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("build did not finish")
	}
	require.NoError(t, first.err)
	assert.Equal(t, int64(1), first.run.Seq)
	assert.Equal(t, project.StatusSuccess, first.run.Status)

	second, err := cli.Orchestrator.Build(t.Context(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, project.StatusSuccess, second.Status)

	files, err := server.Orchestrator.Filelist(t.Context(), p.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "app.txt", files[0].Path)
}
