package orchestrator

import (
	"context"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/buildtool"
	"git.home.luguber.info/inful/projectbuilder/internal/metrics"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Filelist lists the output directory of the project's latest run. Projects
// whose latest run did not succeed report an empty list, so output left by a
// failed or cancelled run is never offered as artifacts.
func (o *Orchestrator) Filelist(ctx context.Context, projectID string) ([]project.ArtifactEntry, error) {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return nil, err
	}
	latest, ok, err := o.latest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !ok || latest.Status != project.StatusSuccess || latest.Tool == "" {
		return []project.ArtifactEntry{}, nil
	}

	dir, err := o.ws.WorkingCopy(projectID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	entries, err := o.scanner.List(buildtool.OutputDir(dir, latest.Tool))
	o.metrics.ObserveStageDuration(metrics.StageScan, time.Since(start))
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// latest picks the newer of the tracker's view and the store, so runs recorded
// by another process sharing the store are seen too.
func (o *Orchestrator) latest(ctx context.Context, projectID string) (project.BuildRun, bool, error) {
	runs, err := o.store.Runs(ctx, projectID, 1)
	if err != nil {
		return project.BuildRun{}, false, err
	}
	run, ok := o.tracker.Latest(projectID)
	if len(runs) > 0 && (!ok || runs[0].Seq > run.Seq) {
		return runs[0], true, nil
	}
	return run, ok, nil
}
