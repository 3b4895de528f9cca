// Package artifact lists the files a build left in its output directory.
package artifact

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// DefaultMaxDepth bounds recursion below the output directory.
const DefaultMaxDepth = 4

// Scanner walks build output directories.
type Scanner struct {
	maxDepth atomic.Int32
}

// NewScanner returns a scanner with the given depth; non-positive uses DefaultMaxDepth.
func NewScanner(maxDepth int) *Scanner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	s := &Scanner{}
	s.maxDepth.Store(int32(maxDepth))
	return s
}

// SetMaxDepth changes the depth for later scans; non-positive restores the default.
func (s *Scanner) SetMaxDepth(maxDepth int) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	s.maxDepth.Store(int32(maxDepth))
}

// MaxDepth returns the current depth limit.
func (s *Scanner) MaxDepth() int { return int(s.maxDepth.Load()) }

// List returns entries below dir: directories first, then files, each sorted by path.
// Direct children have depth 1; deeper entries beyond the depth limit are omitted.
// A missing dir yields an empty list. Symlinks are listed but not followed and
// entries removed while scanning are skipped.
func (s *Scanner) List(dir string) ([]project.ArtifactEntry, error) {
	entries := []project.ArtifactEntry{}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, nil
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "stat output directory").
			WithContext("path", dir).Build()
	}
	if !info.IsDir() {
		return entries, nil
	}

	maxDepth := s.MaxDepth()
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Debug("Skipping unreadable artifact path", logfields.Path(path), logfields.Error(err))
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if depth > maxDepth {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			// removed between readdir and stat
			return nil
		}
		entries = append(entries, project.ArtifactEntry{
			Path:    filepath.ToSlash(rel),
			Name:    d.Name(),
			Size:    sizeOf(fi),
			ModTime: fi.ModTime().UTC(),
			IsDir:   d.IsDir(),
		})
		if d.IsDir() && depth == maxDepth {
			return fs.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrNotExist) {
			return []project.ArtifactEntry{}, nil
		}
		return nil, ferrors.WrapError(walkErr, ferrors.CategoryFileSystem, "scan output directory").
			WithContext("path", dir).Build()
	}

	Sort(entries)
	return entries, nil
}

// Sort orders entries with directories first, then lexicographically by path.
func Sort(entries []project.ArtifactEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Path < entries[j].Path
	})
}

func sizeOf(fi fs.FileInfo) int64 {
	if fi.IsDir() {
		return 0
	}
	return fi.Size()
}
