package daemon

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/projectbuilder/internal/artifact"
	"git.home.luguber.info/inful/projectbuilder/internal/buildlog"
	"git.home.luguber.info/inful/projectbuilder/internal/buildtool"
	"git.home.luguber.info/inful/projectbuilder/internal/config"
	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/git"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/notify"
	"git.home.luguber.info/inful/projectbuilder/internal/orchestrator"
	"git.home.luguber.info/inful/projectbuilder/internal/retry"
	"git.home.luguber.info/inful/projectbuilder/internal/store"
	"git.home.luguber.info/inful/projectbuilder/internal/tracker"
	"git.home.luguber.info/inful/projectbuilder/internal/workspace"
)

// Services is the assembled build stack shared by the daemon and the local
// CLI commands.
type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *store.SQLStore
	Workspace    *workspace.Manager
	Fetcher      *git.Fetcher
	Adapter      *buildtool.Adapter
	Scanner      *artifact.Scanner
	Events       *eventstore.SQLiteStore
	Notifier     *notify.Notifier

	closers []func() error
}

// Assemble opens storage and wires the orchestrator from cfg. The event store
// and the NATS notifier are optional; a notifier that cannot connect is
// logged and skipped.
func Assemble(ctx context.Context, cfg *config.Config) (_ *Services, err error) {
	svc := &Services{}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	svc.Workspace = workspace.NewManager(cfg.Workspace.Root)
	if err = svc.Workspace.Create(); err != nil {
		return nil, err
	}

	svc.Store, err = store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, svc.Store.Close)

	logs, err := buildlog.NewSink(svc.Workspace.LogsDir())
	if err != nil {
		return nil, err
	}

	b := cfg.Build
	svc.Fetcher = git.NewFetcher(retry.FromBuildConfig(b), b.ShallowDepth)
	svc.Adapter = buildtool.NewAdapter(buildtool.ProcessRunner{}, b.TimeoutDuration(), b.GraceDuration())
	svc.Scanner = artifact.NewScanner(b.MaxScanDepth)

	orch, err := orchestrator.New(orchestrator.Deps{
		Store:        svc.Store,
		Fetcher:      svc.Fetcher,
		Builder:      svc.Adapter,
		Scanner:      svc.Scanner,
		Logs:         logs,
		Workspace:    svc.Workspace,
		Tracker:      tracker.New(b.HistorySize),
		HistorySize:  b.HistorySize,
		FetchTimeout: b.FetchTimeoutDuration(),
	})
	if err != nil {
		return nil, err
	}
	svc.Orchestrator = orch

	if cfg.Events.Enabled {
		svc.Events, err = eventstore.NewSQLiteStore(cfg.Events.Path)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, svc.Events.Close)
		orch.WithRecorders(svc.Events).WithEventQuerier(svc.Events)
	}

	if cfg.Events.NATSURL != "" {
		n, nerr := notify.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if nerr != nil {
			slog.Warn("Build notifications disabled", logfields.URL(cfg.Events.NATSURL), logfields.Error(nerr))
		} else {
			svc.Notifier = n
			svc.closers = append(svc.closers, n.Close)
			orch.WithRecorders(n)
		}
	}

	if err = orch.Restore(ctx); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryStore, "restore build history").Build()
	}
	return svc, nil
}

// ApplyBuildConfig pushes a reloaded build section into the running
// components. Invalid sections are rejected and nothing changes.
func (s *Services) ApplyBuildConfig(b config.BuildConfig) error {
	if err := config.ValidateBuild(b); err != nil {
		return err
	}
	s.Fetcher.Reconfigure(retry.FromBuildConfig(b), b.ShallowDepth)
	s.Adapter.Reconfigure(b.TimeoutDuration(), b.GraceDuration())
	s.Orchestrator.SetFetchTimeout(b.FetchTimeoutDuration())
	if b.MaxScanDepth > 0 {
		s.Scanner.SetMaxDepth(b.MaxScanDepth)
	}
	slog.Info("Build configuration applied",
		slog.String("timeout", b.TimeoutDuration().String()),
		slog.String("fetch_timeout", b.FetchTimeoutDuration().String()),
		slog.String("grace_period", b.GraceDuration().String()),
		slog.Int("max_scan_depth", s.Scanner.MaxDepth()))
	return nil
}

// Close releases storage and connections in reverse order of opening.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
