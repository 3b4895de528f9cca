package orchestrator

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// eventFor adapts the (event, error) constructors; a construction error is
// logged and yields nil.
func eventFor[E eventstore.Event](ev E, err error) eventstore.Event {
	if err != nil {
		slog.Warn("Failed to build event", logfields.Error(err))
		return nil
	}
	return ev
}

// emit fans an event out to every recorder. Recording failures never affect
// the build.
func (o *Orchestrator) emit(ctx context.Context, ev eventstore.Event) {
	if ev == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, r := range o.recorders {
		if err := r.Record(ctx, ev); err != nil {
			slog.Warn("Failed to record build event",
				logfields.Event(ev.Type()),
				slog.String("build_id", ev.BuildID()),
				logfields.Error(err))
		}
	}
}

// Events returns the recorded lifecycle events of one run, oldest first.
func (o *Orchestrator) Events(ctx context.Context, projectID string, seq int64) ([]eventstore.Event, error) {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return nil, err
	}
	if o.events == nil {
		return []eventstore.Event{}, nil
	}
	evs, err := o.events.GetByBuildID(ctx, project.RunID(projectID, seq))
	if err != nil {
		return nil, err
	}
	if evs == nil {
		evs = []eventstore.Event{}
	}
	return evs, nil
}

// ProjectEvents returns the newest events across all runs of a project,
// newest first. A limit of zero returns everything recorded.
func (o *Orchestrator) ProjectEvents(ctx context.Context, projectID string, limit int) ([]eventstore.Event, error) {
	if _, err := o.store.Get(ctx, projectID); err != nil {
		return nil, err
	}
	if o.events == nil {
		return []eventstore.Event{}, nil
	}
	evs, err := o.events.GetByProject(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	if evs == nil {
		evs = []eventstore.Event{}
	}
	return evs, nil
}
