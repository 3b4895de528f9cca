package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(t.Context(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestProject(id, name string) *project.Project {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return project.New(id, project.Spec{Name: name, URL: "https://example.com/" + name + ".git", Ref: "main"}, now)
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := newTestProject("p1", "api")
	p.Tool = project.ToolMaven
	p.Auth = &config.AuthConfig{Type: config.AuthTypeToken, Token: "${GIT_TOKEN}"}
	require.NoError(t, s.Create(t.Context(), p))

	got, err := s.Get(t.Context(), "p1")
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, project.ToolMaven, got.Tool)
	assert.Equal(t, project.StatusIdle, got.BuildStatus)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
	assert.True(t, got.LastBuildAt.IsZero())
	require.NotNil(t, got.Auth)
	assert.Equal(t, "${GIT_TOKEN}", got.Auth.Token)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(t.Context(), newTestProject("p1", "api")))
	err := s.Create(t.Context(), newTestProject("p2", "api"))
	require.ErrorIs(t, err, project.ErrProjectExists)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(t.Context(), "nope")
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestDeleteRemovesRuns(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(t.Context(), newTestProject("p1", "api")))
	require.NoError(t, s.SaveRun(t.Context(), project.BuildRun{ProjectID: "p1", Seq: 1, Status: project.StatusSuccess}))

	ok, err := s.Delete(t.Context(), "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	runs, err := s.Runs(t.Context(), "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	ok, err = s.Delete(t.Context(), "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFiltersAndPages(t *testing.T) {
	s := newTestStore(t)
	for i, name := range []string{"billing", "api-gateway", "api-core", "worker", "api-auth"} {
		require.NoError(t, s.Create(t.Context(), newTestProject(fmt.Sprintf("p%d", i), name)))
	}
	require.NoError(t, s.SetBuildStatus(t.Context(), "p2", project.StatusFailure, "abc", time.Now()))

	res, err := s.List(t.Context(), project.Filter{Name: "API"}, project.Page{Number: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "api-auth", res.Items[0].Name)
	assert.Equal(t, "api-core", res.Items[1].Name)

	res, err = s.List(t.Context(), project.Filter{Name: "api"}, project.Page{Number: 2, Size: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "api-gateway", res.Items[0].Name)

	res, err = s.List(t.Context(), project.Filter{Status: project.StatusFailure}, project.Page{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "api-core", res.Items[0].Name)
	assert.Equal(t, "abc", res.Items[0].LastCommit)

	res, err = s.List(t.Context(), project.Filter{Name: "missing"}, project.Page{})
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Zero(t, res.Total)
}

func TestSummaries(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(t.Context(), newTestProject("b", "zeta")))
	require.NoError(t, s.Create(t.Context(), newTestProject("a", "alpha")))

	sums, err := s.Summaries(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []project.Summary{{ID: "a", Name: "alpha"}, {ID: "b", Name: "zeta"}}, sums)
}

func TestSetBuildStatusKeepsCommitWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(t.Context(), newTestProject("p1", "api")))
	require.NoError(t, s.SetBuildStatus(t.Context(), "p1", project.StatusSuccess, "c0ffee", time.Now()))
	require.NoError(t, s.SetBuildStatus(t.Context(), "p1", project.StatusFailure, "", time.Now()))

	got, err := s.Get(t.Context(), "p1")
	require.NoError(t, err)
	assert.Equal(t, project.StatusFailure, got.BuildStatus)
	assert.Equal(t, "c0ffee", got.LastCommit)
	assert.False(t, got.LastBuildAt.IsZero())

	require.ErrorIs(t, s.SetBuildStatus(t.Context(), "missing", project.StatusSuccess, "", time.Now()), project.ErrProjectNotFound)
}

func TestRunsNewestFirstAndLastSeqs(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, s.SaveRun(t.Context(), project.BuildRun{
			ProjectID:  "p1",
			Seq:        seq,
			StartedAt:  start,
			FinishedAt: start.Add(time.Duration(seq) * time.Second),
			Status:     project.StatusSuccess,
			Commit:     fmt.Sprintf("c%d", seq),
			Tool:       project.ToolScript,
			LogRef:     fmt.Sprintf("p1/%d.log", seq),
		}))
	}
	require.NoError(t, s.SaveRun(t.Context(), project.BuildRun{ProjectID: "p2", Seq: 9, Status: project.StatusCancelled, ExitCode: -1}))

	runs, err := s.Runs(t.Context(), "p1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(3), runs[0].Seq)
	assert.Equal(t, 3*time.Second, runs[0].Duration())
	assert.Equal(t, project.ToolScript, runs[0].Tool)

	run, ok, err := s.Run(t.Context(), "p2", 9)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, -1, run.ExitCode)

	_, ok, err = s.Run(t.Context(), "p2", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	seqs, err := s.LastSeqs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"p1": 3, "p2": 9}, seqs)

	err = s.SaveRun(t.Context(), project.BuildRun{ProjectID: "p2", Seq: 9})
	require.Error(t, err)
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(t.Context(), config.StoreConfig{Driver: config.StoreDriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(t.Context(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
}

func TestPostgresDialect(t *testing.T) {
	assert.Equal(t,
		"SELECT a FROM t WHERE x = $1 AND y = $2 LIMIT $3",
		postgresDialect.rebind("SELECT a FROM t WHERE x = ? AND y = ? LIMIT ?"))
	assert.Equal(t, "x = ?", sqliteDialect.rebind("x = ?"))

	assert.True(t, postgresDialect.uniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, postgresDialect.uniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, sqliteDialect.uniqueViolation(nil))
}

func TestSQLiteFileSharedByTwoStores(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "projects.db")
	a, err := NewSQLite(t.Context(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := NewSQLite(t.Context(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, a.Create(t.Context(), newTestProject("p1", "api")))
	start := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	require.NoError(t, b.SaveRun(t.Context(), project.BuildRun{
		ProjectID: "p1", Seq: 1, StartedAt: start, FinishedAt: start.Add(time.Second), Status: project.StatusSuccess,
	}))

	runs, err := a.Runs(t.Context(), "p1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(1), runs[0].Seq)

	var timeout int
	require.NoError(t, b.db.QueryRowContext(t.Context(), `PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}
