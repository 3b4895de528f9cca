package orchestrator

import (
	"context"
	"io"

	"git.home.luguber.info/inful/projectbuilder/internal/buildlog"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Runs returns up to limit terminal runs, newest first.
func (o *Orchestrator) Runs(ctx context.Context, projectID string, limit int) ([]project.BuildRun, error) {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = o.history
	}
	runs, err := o.store.Runs(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []project.BuildRun{}
	}
	return runs, nil
}

// Log opens the captured output of a run. The log of the running build can be
// read while it is written.
func (o *Orchestrator) Log(ctx context.Context, projectID string, seq int64) (io.ReadCloser, error) {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return nil, err
	}
	run, ok, err := o.store.Run(ctx, projectID, seq)
	if err != nil {
		return nil, err
	}
	ref := run.LogRef
	if !ok {
		running, isRunning := o.tracker.Running(projectID)
		if !isRunning || running.Seq != seq {
			return nil, ferrors.NotFoundError("build run not found").
				WithContext("build_id", project.RunID(projectID, seq)).
				Build()
		}
		ref = buildlog.Ref(projectID, seq)
	}
	if ref == "" {
		return nil, ferrors.NotFoundError("build run has no log").
			WithContext("build_id", project.RunID(projectID, seq)).
			Build()
	}
	return o.logs.Read(ref)
}
