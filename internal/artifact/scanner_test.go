package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

func mkfile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
}

func paths(entries []project.ArtifactEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestListMissingDirIsEmpty(t *testing.T) {
	entries, err := NewScanner(0).List(filepath.Join(t.TempDir(), "target"))
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestListOrdersDirectoriesFirst(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "z.jar", "12345")
	mkfile(t, root, "a.txt", "1")
	mkfile(t, root, "lib/dep.jar", "12")
	mkfile(t, root, "classes/com/App.class", "123")

	entries, err := NewScanner(4).List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"classes",
		"classes/com",
		"lib",
		"a.txt",
		"classes/com/App.class",
		"lib/dep.jar",
		"z.jar",
	}, paths(entries))

	byPath := map[string]project.ArtifactEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	assert.Equal(t, int64(5), byPath["z.jar"].Size)
	assert.Equal(t, "dep.jar", byPath["lib/dep.jar"].Name)
	assert.True(t, byPath["lib"].IsDir)
	assert.Zero(t, byPath["lib"].Size)
	assert.False(t, byPath["a.txt"].ModTime.IsZero())
}

func TestListRespectsDepth(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "a/b/c/deep.txt", "x")
	mkfile(t, root, "top.txt", "x")

	entries, err := NewScanner(2).List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/b", "top.txt"}, paths(entries))

	entries, err = NewScanner(1).List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "top.txt"}, paths(entries))
}

func TestListDoesNotFollowSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	mkfile(t, outside, "secret/file.txt", "x")
	mkfile(t, root, "app.jar", "x")
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	entries, err := NewScanner(4).List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.jar", "link"}, paths(entries))
	assert.False(t, entries[1].IsDir)
}

func TestListFileInsteadOfDir(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "target", "not a dir")
	entries, err := NewScanner(4).List(filepath.Join(root, "target"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSetMaxDepth(t *testing.T) {
	root := t.TempDir()
	mkfile(t, root, "a/b/c.txt", "x")

	s := NewScanner(1)
	entries, err := s.List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, paths(entries))

	s.SetMaxDepth(3)
	assert.Equal(t, 3, s.MaxDepth())
	entries, err = s.List(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a/b", "a/b/c.txt"}, paths(entries))

	s.SetMaxDepth(0)
	assert.Equal(t, DefaultMaxDepth, s.MaxDepth())
}
