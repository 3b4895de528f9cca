package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
)

const (
	projectsDir = "projects"
	logsDir     = "logs"
	invalidExt  = ".invalid"
	lockExt     = ".lock"
)

// InvalidMarker is the file next to a working copy that flags it for a fresh
// clone after a failed fetch.
func InvalidMarker(dir string) string { return filepath.Clean(dir) + invalidExt }

// LockFile is the file next to a working copy that processes sharing the
// workspace lock before building in it.
func LockFile(dir string) string { return filepath.Clean(dir) + lockExt }

// Manager resolves and reclaims workspace paths.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at root. An empty root falls back to the
// system temp directory.
func NewManager(root string) *Manager {
	if root == "" {
		root = filepath.Join(os.TempDir(), "projectbuilder")
	}
	return &Manager{root: root}
}

// Create ensures the root layout exists.
func (m *Manager) Create() error {
	for _, dir := range []string{m.root, m.ProjectsRoot(), m.LogsDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create workspace directory").
				WithContext("path", dir).Build()
		}
	}
	slog.Info("Using workspace", logfields.Path(m.root))
	return nil
}

// Root returns the workspace root.
func (m *Manager) Root() string { return m.root }

// ProjectsRoot is the parent of all working copies.
func (m *Manager) ProjectsRoot() string { return filepath.Join(m.root, projectsDir) }

// LogsDir is the root of the build log sink.
func (m *Manager) LogsDir() string { return filepath.Join(m.root, logsDir) }

// WorkingCopy returns the working copy path of a project. The directory itself
// is materialized by the first fetch.
func (m *Manager) WorkingCopy(projectID string) (string, error) {
	if projectID == "" || strings.ContainsAny(projectID, `/\`) || projectID == "." || projectID == ".." {
		return "", ferrors.ValidationError("invalid project id").WithContext("project_id", projectID).Build()
	}
	return filepath.Join(m.ProjectsRoot(), projectID), nil
}

// TryLock takes the working copy lock of a project without blocking. ok is
// false while another process, or another Manager in this one, holds it.
func (m *Manager) TryLock(projectID string) (unlock func(), ok bool, err error) {
	dir, err := m.WorkingCopy(projectID)
	if err != nil {
		return nil, false, err
	}
	fl := flock.New(LockFile(dir))
	ok, err = fl.TryLock()
	if err != nil {
		return nil, false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "lock working copy").
			WithContext("path", fl.Path()).Build()
	}
	if !ok {
		slog.Debug("Working copy locked elsewhere", logfields.ProjectID(projectID), logfields.Path(fl.Path()))
		return nil, false, nil
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			slog.Warn("Failed to unlock working copy", logfields.Path(fl.Path()), logfields.Error(err))
		}
	}, true, nil
}

// Reclaim removes the working copy of a project including any build output,
// the invalid marker and the lock file next to it. Missing paths are not an
// error.
func (m *Manager) Reclaim(projectID string) error {
	dir, err := m.WorkingCopy(projectID)
	if err != nil {
		return err
	}
	for _, p := range []string{dir, InvalidMarker(dir), LockFile(dir)} {
		if err := os.RemoveAll(p); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "reclaim working copy").
				WithContext("path", p).Build()
		}
	}
	slog.Debug("Reclaimed working copy", logfields.ProjectID(projectID), logfields.Path(dir))
	return nil
}
