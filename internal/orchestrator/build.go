package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/buildtool"
	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/git"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/metrics"
	"git.home.luguber.info/inful/projectbuilder/internal/observability"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Build triggers recorded in BuildStarted events.
const (
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
)

type triggerKey struct{}

// WithTrigger records what requested the builds started with ctx.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

func triggerFrom(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok && t != "" {
		return t
	}
	return TriggerAPI
}

// Build runs one build of a project and returns its terminal run.
//
// It fails fast with project.ErrProjectNotFound or
// project.ErrBuildAlreadyInProgress before anything is recorded. Once the lock
// is held exactly one terminal run is recorded, and fetch, layout, process and
// persistence faults are returned together with that run. A non-zero tool
// exit is a FAILURE run with a nil error. Timeouts of either stage and Cancel
// produce a CANCELLED run.
func (o *Orchestrator) Build(ctx context.Context, projectID string) (project.BuildRun, error) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return project.BuildRun{}, err
	}

	lease, err := o.tracker.Begin(ctx, projectID)
	if err != nil {
		if errors.Is(err, project.ErrBuildAlreadyInProgress) {
			o.metrics.IncRejected(metrics.RejectInProgress)
		}
		return project.BuildRun{}, err
	}
	o.metrics.AddRunning(1)
	defer o.metrics.AddRunning(-1)

	run := lease.Run()
	// Releases the lock if anything below panics; the regular Finish wins otherwise.
	defer lease.Finish(project.BuildRun{Status: project.StatusFailure, Error: "build aborted"})

	runCtx, stop := o.runContext(lease.Context())
	defer stop()
	runCtx = observability.WithProjectID(runCtx, projectID)
	runCtx = observability.WithBuildID(runCtx, run.ID())
	runCtx, span := observability.StartBuildSpan(runCtx, projectID, run.ID())

	observability.InfoContext(runCtx, "Build started", logfields.ProjectName(p.Name), logfields.Ref(p.Ref))
	o.emit(runCtx, eventFor(eventstore.NewBuildStarted(run, p.URL, p.Ref, triggerFrom(ctx))))

	result, buildErr := o.execute(runCtx, p, run)
	final, persistErr := o.complete(runCtx, lease.Finish, result)
	switch {
	case persistErr == nil:
	case buildErr == nil:
		buildErr = persistErr
	default:
		buildErr = errors.Join(buildErr, persistErr)
	}

	observability.EndSpan(span, buildErr)
	return final, buildErr
}

// runContext bounds a whole run by the fetch timeout plus the tool timeout and
// grace period, so one deadline stops whichever stage is active. Builders that
// do not report limits leave only the fetch stage bounded.
func (o *Orchestrator) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	lb, ok := o.builder.(limitedBuilder)
	if !ok {
		return context.WithCancel(ctx)
	}
	timeout, grace := lb.Limits()
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.FetchTimeout()+timeout+grace)
}

// execute performs the fetch and build stages and returns the run to record.
func (o *Orchestrator) execute(ctx context.Context, p *project.Project, run project.BuildRun) (project.BuildRun, error) {
	result := run
	// -1 until the build tool actually reports an exit code.
	result.ExitCode = -1

	logw, ref, err := o.logs.Open(run.ProjectID, run.Seq)
	if err != nil {
		result.Status = project.StatusFailure
		result.Error = err.Error()
		return result, err
	}
	defer func() {
		if cerr := logw.Close(); cerr != nil {
			observability.WarnContext(ctx, "Failed to close build log", logfields.Error(cerr))
		}
	}()
	result.LogRef = ref

	dir, err := o.ws.WorkingCopy(p.ID)
	if err != nil {
		result.Status = project.StatusFailure
		result.Error = err.Error()
		return result, err
	}

	commit, err := o.fetch(ctx, p, run, dir, logw)
	if err != nil {
		result.Status = failureStatus(ctx, err)
		result.Error = err.Error()
		_, _ = fmt.Fprintf(logw, "source fetch failed: %v\n", err)
		return result, err
	}
	result.Commit = commit

	stageCtx, span := observability.StartStageSpan(ctx, metrics.StageBuild)
	out, err := o.builder.Build(stageCtx, dir, p.Tool, logw)
	o.metrics.ObserveStageDuration(metrics.StageBuild, out.Duration)
	observability.EndSpan(span, err)

	result.Tool = out.Kind
	result.OutputDir = out.OutputDir
	if out.Kind != "" {
		result.ExitCode = out.ExitCode
	}
	if err != nil {
		result.Status = failureStatus(ctx, err)
		result.Error = err.Error()
		return result, err
	}
	if out.Succeeded() {
		result.Status = project.StatusSuccess
		return result, nil
	}
	result.Status = project.StatusFailure
	result.Error = fmt.Sprintf("build tool exited with code %d", out.ExitCode)
	return result, nil
}

func (o *Orchestrator) fetch(ctx context.Context, p *project.Project, run project.BuildRun, dir string, logw io.Writer) (string, error) {
	stageCtx, span := observability.StartStageSpan(ctx, metrics.StageFetch)
	_, _ = fmt.Fprintf(logw, "fetching %s at %s\n", p.URL, p.Ref)

	timeout := o.FetchTimeout()
	fetchCtx, cancel := context.WithTimeout(stageCtx, timeout)
	defer cancel()

	start := time.Now()
	commit, err := o.fetcher.Fetch(fetchCtx, git.FetchRequest{URL: p.URL, Ref: p.Ref, Auth: p.Auth, Dir: dir})
	elapsed := time.Since(start)
	if err != nil && fetchCtx.Err() != nil && !buildtool.Cancelled(err) {
		// transports that swallow the context error still report why they stopped
		err = project.ErrSourceFetch.WithCause(fmt.Errorf("%w: %w", fetchCtx.Err(), err)).
			WithContext("url", p.URL).
			WithContext("timeout", timeout.String())
	}
	o.metrics.ObserveStageDuration(metrics.StageFetch, elapsed)
	observability.EndSpan(span, err)
	if err != nil {
		observability.WarnContext(stageCtx, "Source fetch failed", logfields.URL(p.URL), logfields.Error(err))
		return "", err
	}

	_, _ = fmt.Fprintf(logw, "checked out %s\n", commit)
	observability.InfoContext(stageCtx, "Source fetched", logfields.Commit(commit),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
	o.emit(ctx, eventFor(eventstore.NewSourceFetched(run, commit, dir, elapsed)))
	return commit, nil
}

// failureStatus maps a stage failure to CANCELLED when the run was cancelled
// or a stage ran out of time.
func failureStatus(ctx context.Context, err error) project.Status {
	if ctx.Err() != nil || buildtool.Cancelled(err) {
		return project.StatusCancelled
	}
	return project.StatusFailure
}

// complete persists the terminal run while the lock is still held, then
// releases it and publishes the outcome. A persistence failure is returned
// classified as a store error; the run is still released and reported.
func (o *Orchestrator) complete(ctx context.Context, finish func(project.BuildRun) project.BuildRun, result project.BuildRun) (project.BuildRun, error) {
	result.FinishedAt = o.now()
	persistCtx := context.WithoutCancel(ctx)
	var errs []error
	if err := o.store.SaveRun(persistCtx, result); err != nil {
		observability.ErrorContext(ctx, "Failed to persist build run", logfields.Error(err))
		errs = append(errs, err)
	}
	if err := o.store.SetBuildStatus(persistCtx, result.ProjectID, result.Status, result.Commit, result.FinishedAt); err != nil {
		observability.ErrorContext(ctx, "Failed to update project status", logfields.Error(err))
		errs = append(errs, err)
	}
	var persistErr error
	if len(errs) > 0 {
		persistErr = ferrors.WrapError(errors.Join(errs...), ferrors.CategoryStore, "build run not persisted").
			WithContext("project_id", result.ProjectID).
			WithContext("seq", result.Seq).
			Build()
	}

	final := finish(result)

	o.metrics.IncBuildOutcome(string(final.Status))
	o.metrics.ObserveBuildDuration(string(final.Tool), final.Duration())
	o.emit(ctx, eventFor(eventstore.NewBuildFinished(final)))

	level := slog.LevelInfo
	if final.Status != project.StatusSuccess {
		level = slog.LevelWarn
	}
	slog.LogAttrs(ctx, level, "Build finished",
		logfields.ProjectID(final.ProjectID),
		logfields.BuildSeq(final.Seq),
		logfields.BuildStatus(string(final.Status)),
		logfields.ExitCode(final.ExitCode),
		logfields.DurationMS(float64(final.Duration().Milliseconds())))
	return final, persistErr
}

// Cancel stops the running build of a project and reports whether one was running.
func (o *Orchestrator) Cancel(ctx context.Context, projectID string) (bool, error) {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return false, err
	}
	cancelled := o.tracker.Cancel(projectID)
	if cancelled {
		slog.Info("Build cancellation requested", logfields.ProjectID(projectID))
	}
	return cancelled, nil
}

// Running returns the in-progress run of a project, if any.
func (o *Orchestrator) Running(projectID string) (project.BuildRun, bool) {
	return o.tracker.Running(projectID)
}
