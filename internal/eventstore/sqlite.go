package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based event store.
// Use ":memory:" for in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ErrDatabaseOpenFailed.WithCause(err).WithContext("path", dbPath)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, ErrInitializeSchemaFailed.WithCause(err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_build_id ON events(build_id);
	CREATE INDEX IF NOT EXISTS idx_project_id ON events(project_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record adds a new event to the store.
func (s *SQLiteStore) Record(ctx context.Context, ev Event) error {
	var metadataJSON []byte
	if md := ev.Metadata(); md != nil {
		var err error
		metadataJSON, err = json.Marshal(md)
		if err != nil {
			return ErrEventAppendFailed.WithCause(fmt.Errorf("marshal metadata: %w", err))
		}
	}

	ts := ev.Timestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (build_id, project_id, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?, ?)",
		ev.BuildID(), ev.ProjectID(), ev.Type(), ts.UnixNano(), ev.Payload(), metadataJSON,
	)
	if err != nil {
		return ErrEventAppendFailed.WithCause(err).WithContext("build_id", ev.BuildID())
	}

	return nil
}

const selectEvents = "SELECT id, build_id, project_id, event_type, timestamp, payload, metadata FROM events"

// GetByBuildID retrieves all events for a specific build.
func (s *SQLiteStore) GetByBuildID(ctx context.Context, buildID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, selectEvents+" WHERE build_id = ? ORDER BY id", buildID)
	if err != nil {
		return nil, ErrEventQueryFailed.WithCause(err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// GetByProject retrieves the newest events of a project.
func (s *SQLiteStore) GetByProject(ctx context.Context, projectID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectEvents+" WHERE project_id = ? ORDER BY id DESC LIMIT ?", projectID, limit)
	if err != nil {
		return nil, ErrEventQueryFailed.WithCause(err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *SQLiteStore) scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e BaseEvent
		var ts int64
		var metadataJSON []byte

		err := rows.Scan(&e.EventID, &e.EventBuildID, &e.EventProjectID, &e.EventType, &ts, &e.EventPayload, &metadataJSON)
		if err != nil {
			return nil, ErrEventQueryFailed.WithCause(fmt.Errorf("scan event: %w", err))
		}

		e.EventTimestamp = time.Unix(0, ts)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.EventMetadata); err != nil {
				return nil, ErrEventQueryFailed.WithCause(fmt.Errorf("unmarshal metadata: %w", err))
			}
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, ErrEventQueryFailed.WithCause(fmt.Errorf("iterate rows: %w", err))
	}

	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
