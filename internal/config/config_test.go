package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte("{}"), &cfg))
	require.NoError(t, applyDefaults(&cfg))

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "30m", cfg.Build.Timeout)
	assert.Equal(t, "10s", cfg.Build.GracePeriod)
	assert.Equal(t, 10*time.Minute, cfg.Build.FetchTimeoutDuration())
	assert.Equal(t, 20, cfg.Build.HistorySize)
	assert.Equal(t, 4, cfg.Build.MaxScanDepth)
	assert.Equal(t, RetryBackoffLinear, cfg.Build.RetryBackoff)
	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, filepath.Join("./projectbuilder-data", "projects.db"), cfg.Store.DSN)
	assert.Equal(t, "projectbuilder.builds", cfg.Events.Subject)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 41*time.Minute+10*time.Second, cfg.Server.WriteTimeoutDuration())
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	raw := `
workspace:
  root: /srv/builds
build:
  timeout: 5m
  history_size: 3
  max_scan_depth: 2
  retry_backoff: EXPONENTIAL
store:
  driver: Postgres
  dsn: postgres://localhost/projects
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	require.NoError(t, applyDefaults(&cfg))

	assert.Equal(t, 5*time.Minute, cfg.Build.TimeoutDuration())
	assert.Equal(t, 3, cfg.Build.HistorySize)
	assert.Equal(t, 2, cfg.Build.MaxScanDepth)
	assert.Equal(t, RetryBackoffExponential, cfg.Build.RetryBackoff)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/projects", cfg.Store.DSN)
	assert.Equal(t, filepath.Join("/srv/builds", "events.db"), cfg.Events.Path)
}

func TestParse_ExpandsEnvironment(t *testing.T) {
	t.Setenv("PB_TEST_ROOT", "/tmp/pb-root")
	cfg, err := Parse([]byte("workspace:\n  root: ${PB_TEST_ROOT}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pb-root", cfg.Workspace.Root)
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := map[string]string{
		"bad timeout":    "build:\n  timeout: soon\n",
		"bad fetch":      "build:\n  fetch_timeout: -1s\n",
		"bad backoff":    "build:\n  retry_backoff: random\n",
		"bad driver":     "store:\n  driver: mysql\n  dsn: x\n",
		"postgres dsn":   "store:\n  driver: postgres\n",
		"bad format":     "logging:\n  format: xml\n",
		"bad schedule":   "schedule:\n  rebuild_interval: daily\n",
		"negative retry": "build:\n  max_retries: -1\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projectbuilder.yaml")
	require.NoError(t, Init(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.Schedule.RebuildIntervalDuration())

	err = Init(path, false)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	require.NoError(t, Init(path, true))
}

func TestAuthConfig_ExpandedAndRedacted(t *testing.T) {
	t.Setenv("PB_TEST_TOKEN", "s3cret")
	auth := &AuthConfig{Type: AuthTypeToken, Token: "${PB_TEST_TOKEN}"}

	assert.Equal(t, "s3cret", auth.Expanded().Token)
	assert.Equal(t, "***", auth.Redacted().Token)
	assert.Equal(t, "${PB_TEST_TOKEN}", auth.Token)
	assert.True(t, (&AuthConfig{Type: AuthTypeNone}).IsZero())
	assert.True(t, (*AuthConfig)(nil).IsZero())
}

func TestNormalizeRetryBackoff(t *testing.T) {
	assert.Equal(t, RetryBackoffFixed, NormalizeRetryBackoff(" Fixed "))
	assert.Equal(t, RetryBackoffMode(""), NormalizeRetryBackoff("jitter"))
}

func TestWatcher_ReloadsBuildSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projectbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte("build:\n  timeout: 1m\n"), 0o600))

	reloaded := make(chan BuildConfig, 4)
	w, err := NewWatcher(path, func(b BuildConfig) { reloaded <- b })
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("build:\n  timeout: 2m\n  max_scan_depth: 7\n"), 0o600))

	select {
	case b := <-reloaded:
		assert.Equal(t, "2m", b.Timeout)
		assert.Equal(t, 7, b.MaxScanDepth)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration was not reloaded")
	}
}
