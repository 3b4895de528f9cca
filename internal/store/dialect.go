package store

import (
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// dialect captures the few places where sqlite and postgres disagree.
type dialect struct {
	driver          string
	numbered        bool
	uniqueViolation func(error) bool
	// setup runs before the schema is created.
	setup []string
}

var sqliteDialect = dialect{
	driver: "sqlite",
	// a CLI and a daemon may write the same database file
	setup: []string{`PRAGMA busy_timeout = 5000`},
	uniqueViolation: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

var postgresDialect = dialect{
	driver:   "postgres",
	numbered: true,
	uniqueViolation: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

// rebind rewrites ? placeholders to $n for drivers that need numbered parameters.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// schema is portable between sqlite and postgres. Times are unix nanoseconds; 0 means unset.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		ref TEXT NOT NULL,
		tool TEXT NOT NULL DEFAULT '',
		auth TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		build_status TEXT NOT NULL,
		last_build_at BIGINT NOT NULL DEFAULT 0,
		last_commit TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(build_status)`,
	`CREATE TABLE IF NOT EXISTS build_runs (
		project_id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		started_at BIGINT NOT NULL,
		finished_at BIGINT NOT NULL,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		commit_hash TEXT NOT NULL DEFAULT '',
		tool TEXT NOT NULL DEFAULT '',
		log_ref TEXT NOT NULL DEFAULT '',
		output_dir TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (project_id, seq)
	)`,
}
