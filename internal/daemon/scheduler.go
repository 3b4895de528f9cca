package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/orchestrator"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Scheduler wraps a gocron scheduler for periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running tasks.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleEvery runs task every interval. A run still in progress when the
// next tick fires causes that tick to be skipped.
func (s *Scheduler) ScheduleEvery(name string, interval time.Duration, task func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive: %s", interval)
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}

// rebuildService is what a periodic rebuild needs from the orchestrator.
type rebuildService interface {
	Select(ctx context.Context) ([]project.Summary, error)
	Build(ctx context.Context, projectID string) (project.BuildRun, error)
}

// rebuildAll builds every project once, one after another. Projects with a
// build in progress are skipped.
func rebuildAll(ctx context.Context, svc rebuildService) (built, skipped int) {
	ctx = orchestrator.WithTrigger(ctx, orchestrator.TriggerSchedule)
	projects, err := svc.Select(ctx)
	if err != nil {
		slog.Error("Scheduled rebuild could not list projects", logfields.Error(err))
		return 0, 0
	}
	for _, p := range projects {
		if ctx.Err() != nil {
			break
		}
		run, err := svc.Build(ctx, p.ID)
		switch {
		case errors.Is(err, project.ErrBuildAlreadyInProgress):
			skipped++
			slog.Debug("Scheduled rebuild skipped busy project", logfields.ProjectID(p.ID))
			continue
		case errors.Is(err, project.ErrProjectNotFound):
			// deleted since listing
			skipped++
			continue
		case err != nil:
			slog.Warn("Scheduled rebuild failed",
				logfields.ProjectID(p.ID),
				logfields.BuildSeq(run.Seq),
				logfields.Error(err))
		}
		built++
	}
	slog.Info("Scheduled rebuild finished", slog.Int("built", built), slog.Int("skipped", skipped))
	return built, skipped
}
