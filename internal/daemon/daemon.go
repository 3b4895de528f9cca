package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/metrics"
	"git.home.luguber.info/inful/projectbuilder/internal/server/httpserver"
	"git.home.luguber.info/inful/projectbuilder/internal/telemetry"
	"git.home.luguber.info/inful/projectbuilder/internal/version"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Daemon runs the REST server and background jobs around the build stack.
type Daemon struct {
	config         *config.Config
	configFilePath string
	status         atomic.Value
	startTime      atomic.Int64
	mu             sync.Mutex

	services      *Services
	httpServer    *httpserver.Server
	scheduler     *Scheduler
	configWatcher *config.Watcher
	shutdownTrace telemetry.ShutdownFunc

	// ctx bounds background rebuilds; cancel stops them on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// New assembles a daemon. configFilePath enables hot reload of the build
// section when non-empty.
func New(ctx context.Context, cfg *config.Config, configFilePath string) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	shutdownTrace, err := telemetry.Init(ctx, cfg.Telemetry, version.Version)
	if err != nil {
		return nil, err
	}

	svc, err := Assemble(ctx, cfg)
	if err != nil {
		_ = shutdownTrace(ctx)
		return nil, err
	}

	d := &Daemon{
		config:         cfg,
		configFilePath: configFilePath,
		services:       svc,
		shutdownTrace:  shutdownTrace,
	}
	d.status.Store(StatusStopped)

	var opts httpserver.Options
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		svc.Orchestrator.WithMetrics(metrics.NewPrometheusRecorder(reg))
		opts.MetricsHandler = metrics.HTTPHandler(reg)
		opts.MetricsPath = cfg.Metrics.Path
	}
	d.httpServer = httpserver.New(cfg.Server, svc.Orchestrator, d, opts)

	if interval := cfg.Schedule.RebuildIntervalDuration(); interval > 0 {
		d.scheduler, err = NewScheduler()
		if err != nil {
			d.closeServices(ctx)
			return nil, err
		}
		if _, err := d.scheduler.ScheduleEvery("project-rebuild", interval, d.rebuild); err != nil {
			_ = d.scheduler.Stop()
			d.closeServices(ctx)
			return nil, err
		}
	}

	if configFilePath != "" {
		w, err := config.NewWatcher(configFilePath, d.reloadBuildConfig)
		if err != nil {
			slog.Warn("Config hot reload disabled", logfields.Path(configFilePath), logfields.Error(err))
		} else {
			d.configWatcher = w
		}
	}
	return d, nil
}

// Services exposes the assembled build stack.
func (d *Daemon) Services() *Services { return d.services }

// Addr is the bound HTTP address once started.
func (d *Daemon) Addr() string { return d.httpServer.Addr() }

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusStopped
	}
	return status
}

// StartTime reports when Start was called.
func (d *Daemon) StartTime() time.Time {
	ns := d.startTime.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// RunningBuilds is the number of builds currently holding a project lock.
func (d *Daemon) RunningBuilds() int {
	return d.services.Orchestrator.Tracker().RunningCount()
}

// Start brings up the HTTP server, the scheduler and the config watcher. It
// returns once everything listens.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.GetStatus() != StatusStopped {
		return fmt.Errorf("daemon is not in stopped state: %s", d.GetStatus())
	}
	d.status.Store(StatusStarting)
	d.startTime.Store(time.Now().UnixNano())
	d.ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := d.httpServer.Start(ctx); err != nil {
		d.cancel()
		d.status.Store(StatusStopped)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if d.scheduler != nil {
		d.scheduler.Start()
	}
	if d.configWatcher != nil {
		if err := d.configWatcher.Start(d.ctx); err != nil {
			slog.Error("Failed to start config watcher", logfields.Error(err))
		}
	}

	d.status.Store(StatusRunning)
	slog.Info("projectbuilder daemon started",
		slog.String("version", version.Version),
		slog.String("addr", d.httpServer.Addr()),
		logfields.Path(d.services.Workspace.Root()),
		slog.String("store", string(d.config.Store.Driver)),
		slog.Bool("events", d.services.Events != nil),
		slog.Bool("notifications", d.services.Notifier != nil),
		slog.Bool("schedule", d.scheduler != nil))
	return nil
}

// Run starts the daemon and blocks until ctx is done, then shuts down within
// the configured grace period plus the HTTP write timeout.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	slog.Info("Shutdown requested")

	grace := d.config.Build.GraceDuration() + 5*time.Second
	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return d.Stop(stopCtx)
}

// Stop cancels running builds and shuts components down in reverse order.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.GetStatus() {
	case StatusStopped, StatusStopping:
		return nil
	}
	d.status.Store(StatusStopping)
	slog.Info("Stopping projectbuilder daemon")

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			slog.Error("Failed to stop config watcher", logfields.Error(err))
		}
	}
	if d.cancel != nil {
		d.cancel()
	}
	if n := d.services.Orchestrator.Tracker().CancelAll(); n > 0 {
		slog.Info("Cancelled running builds", slog.Int("count", n))
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			slog.Error("Failed to stop scheduler", logfields.Error(err))
		}
	}
	if err := d.httpServer.Stop(ctx); err != nil {
		slog.Error("Failed to stop HTTP server", logfields.Error(err))
	}
	d.closeServices(ctx)

	d.status.Store(StatusStopped)
	slog.Info("projectbuilder daemon stopped", slog.Duration("uptime", time.Since(d.StartTime())))
	return nil
}

func (d *Daemon) closeServices(ctx context.Context) {
	if err := d.services.Close(); err != nil {
		slog.Error("Failed to close services", logfields.Error(err))
	}
	if d.shutdownTrace != nil {
		if err := d.shutdownTrace(ctx); err != nil {
			slog.Warn("Tracer shutdown failed", logfields.Error(err))
		}
	}
}

func (d *Daemon) rebuild() {
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	rebuildAll(ctx, d.services.Orchestrator)
}

func (d *Daemon) reloadBuildConfig(b config.BuildConfig) {
	if err := d.services.ApplyBuildConfig(b); err != nil {
		slog.Error("Rejected reloaded build configuration", logfields.Error(err))
	}
}
