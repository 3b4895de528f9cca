package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/metrics"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Create validates spec and registers a new project. The working copy is
// materialized by the first build.
func (o *Orchestrator) Create(ctx context.Context, spec project.Spec) (*project.Project, error) {
	spec = spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	p := project.New(o.newID(), spec, o.now())
	if err := o.store.Create(ctx, p); err != nil {
		return nil, err
	}
	slog.Info("Project created", logfields.ProjectID(p.ID), logfields.ProjectName(p.Name), logfields.URL(p.URL))
	return p, nil
}

// Get returns a project with its live build status.
func (o *Orchestrator) Get(ctx context.Context, projectID string) (*project.Project, error) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	o.overlay(p)
	return p, nil
}

// List returns one page of projects matching filter.
func (o *Orchestrator) List(ctx context.Context, filter project.Filter, page project.Page) (project.PageResult, error) {
	res, err := o.store.List(ctx, filter, page)
	if err != nil {
		return project.PageResult{}, err
	}
	for _, p := range res.Items {
		o.overlay(p)
	}
	return res, nil
}

// Select returns id and name of every project.
func (o *Orchestrator) Select(ctx context.Context) ([]project.Summary, error) {
	return o.store.Summaries(ctx)
}

// overlay reports RUNNING for projects holding the build lock; the store only
// ever records terminal statuses.
func (o *Orchestrator) overlay(p *project.Project) {
	if o.tracker.State(p.ID) == project.StatusRunning {
		p.BuildStatus = project.StatusRunning
	}
}

// Delete removes a project together with its working copy, build output and
// logs. It fails with project.ErrProjectBusy while a build is running.
func (o *Orchestrator) Delete(ctx context.Context, projectID string) error {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return err
	}
	err := o.tracker.Guard(projectID, func() error {
		deleted, err := o.store.Delete(ctx, projectID)
		if err != nil {
			return err
		}
		if !deleted {
			return project.NotFound(projectID)
		}
		o.tracker.Forget(projectID)

		var errs []error
		if err := o.ws.Reclaim(projectID); err != nil {
			errs = append(errs, err)
		}
		if err := o.logs.RemoveProject(projectID); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return ferrors.FileSystemError("project deleted but files remain").
				WithCause(errors.Join(errs...)).
				WithContext("project_id", projectID).
				Build()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, project.ErrProjectBusy) {
			o.metrics.IncRejected(metrics.RejectBusy)
		}
		return err
	}
	slog.Info("Project deleted", logfields.ProjectID(projectID))
	return nil
}
