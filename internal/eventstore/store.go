package eventstore

import (
	"context"
)

// Store defines the interface for persisting and retrieving events.
type Store interface {
	// Record appends a typed event.
	Record(ctx context.Context, ev Event) error

	// GetByBuildID retrieves all events for a specific build run.
	GetByBuildID(ctx context.Context, buildID string) ([]Event, error)

	// GetByProject retrieves the newest events of a project, newest first.
	GetByProject(ctx context.Context, projectID string, limit int) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
