// Package buildlog stores captured build output as one append-only file per build run.
package buildlog

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

// Sink writes logs below a root directory, keyed by project id and run sequence.
type Sink struct {
	root string
}

// NewSink creates the root directory when missing.
func NewSink(root string) (*Sink, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create log directory").
			WithContext("path", root).Build()
	}
	return &Sink{root: root}, nil
}

// Ref returns the reference under which a run's log is stored.
func Ref(projectID string, seq int64) string {
	return path.Join(projectID, fmt.Sprintf("%d.log", seq))
}

// Open creates the log file for a run and returns it with its reference.
func (s *Sink) Open(projectID string, seq int64) (io.WriteCloser, string, error) {
	ref := Ref(projectID, seq)
	full, err := s.resolve(ref)
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "create log directory").
			WithContext("path", filepath.Dir(full)).Build()
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "open build log").
			WithContext("path", full).Build()
	}
	return f, ref, nil
}

// Read opens a stored log.
func (s *Sink) Read(ref string) (io.ReadCloser, error) {
	full, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFoundError("build log not found").WithContext("ref", ref).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open build log").
			WithContext("ref", ref).Build()
	}
	return f, nil
}

// RemoveProject deletes every log of a project.
func (s *Sink) RemoveProject(projectID string) error {
	dir, err := s.resolve(projectID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove build logs").
			WithContext("path", dir).Build()
	}
	return nil
}

// resolve maps a ref to a path and rejects anything escaping the root.
func (s *Sink) resolve(ref string) (string, error) {
	clean := path.Clean("/" + ref)
	if ref == "" || clean == "/" || strings.Contains(ref, "..") {
		return "", ferrors.ValidationError("invalid log reference").WithContext("ref", ref).Build()
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
