package project

import (
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
)

// Sentinel errors for the orchestration failure kinds. Concrete errors are
// derived with WithContext/WithCause and still satisfy errors.Is.
var (
	ErrProjectNotFound = ferrors.NotFoundError("project not found").Build()

	ErrBuildAlreadyInProgress = ferrors.ConflictError("build already in progress").Build()

	ErrProjectBusy = ferrors.ConflictError("project is busy building").Build()

	ErrProjectExists = ferrors.NewError(ferrors.CategoryAlreadyExists, "project name already exists").Build()

	ErrSourceFetch = ferrors.GitError("source fetch failed").Build()

	ErrUnsupportedProjectLayout = ferrors.NewError(ferrors.CategoryLayout, "unsupported project layout").UserAction().Build()

	ErrBuildProcessFault = ferrors.BuildError("build process fault").Build()
)

// NotFound returns ErrProjectNotFound annotated with the id.
func NotFound(id string) error {
	return ErrProjectNotFound.WithContext("project_id", id)
}

// InProgress returns ErrBuildAlreadyInProgress annotated with the id.
func InProgress(id string) error {
	return ErrBuildAlreadyInProgress.WithContext("project_id", id)
}

// Busy returns ErrProjectBusy annotated with the id.
func Busy(id string) error {
	return ErrProjectBusy.WithContext("project_id", id)
}
