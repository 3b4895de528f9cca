// Package tracker enforces at most one running build per project and keeps
// the recent run history in memory.
package tracker

import (
	"context"
	"sync"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// DefaultHistorySize bounds in-memory history when no size is configured.
const DefaultHistorySize = 20

// ProcessLocker excludes builds of the same project by other processes
// sharing the workspace. TryLock never blocks; ok is false while another
// process holds the lock.
type ProcessLocker interface {
	TryLock(projectID string) (unlock func(), ok bool, err error)
}

// SyncFunc reloads the last sequence number and the newest runs of a project,
// newest first, from shared storage. It runs with the project lock held, so it
// sees every run other processes recorded. An error aborts the transition.
type SyncFunc func(ctx context.Context, projectID string) (lastSeq int64, runs []project.BuildRun, err error)

// Tracker holds per-project build state.
type Tracker struct {
	mu          sync.Mutex
	projects    map[string]*state
	historySize int
	now         func() time.Time

	locker ProcessLocker
	sync   SyncFunc
}

// state guards one project. lock is only ever taken with TryLock.
type state struct {
	lock sync.Mutex

	mu      sync.Mutex
	lastSeq int64
	running *project.BuildRun
	cancel  context.CancelFunc
	history []project.BuildRun // oldest first
	gone    bool
}

// New creates a tracker keeping up to historySize runs per project.
func New(historySize int) *Tracker {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Tracker{projects: make(map[string]*state), historySize: historySize, now: time.Now}
}

// WithProcessLocker makes Begin and Guard also take l's lock. Call before use.
func (t *Tracker) WithProcessLocker(l ProcessLocker) *Tracker {
	t.locker = l
	return t
}

// WithSync makes Begin refresh numbering and history through fn once the
// project is locked. Call before use.
func (t *Tracker) WithSync(fn SyncFunc) *Tracker {
	t.sync = fn
	return t
}

func (t *Tracker) state(projectID string) *state {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.projects[projectID]
	if !ok {
		st = &state{}
		t.projects[projectID] = st
	}
	return st
}

// drop removes a forgotten project once nothing holds its lock.
func (t *Tracker) drop(projectID string, st *state) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.projects[projectID] == st {
		delete(t.projects, projectID)
	}
}

// acquire takes the in-process lock and then the process lock. held is the
// error returned when either is taken elsewhere.
func (t *Tracker) acquire(projectID string, st *state, held error) (func(), error) {
	if !st.lock.TryLock() {
		return nil, held
	}
	if t.locker == nil {
		return func() {}, nil
	}
	unlock, ok, err := t.locker.TryLock(projectID)
	if err != nil {
		st.lock.Unlock()
		return nil, err
	}
	if !ok {
		st.lock.Unlock()
		return nil, held
	}
	return unlock, nil
}

func (t *Tracker) lookup(projectID string) (*state, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.projects[projectID]
	return st, ok
}

// Lease is held for the duration of one build. Finish must be called exactly once.
type Lease struct {
	t      *Tracker
	st     *state
	run    project.BuildRun
	ctx    context.Context
	unlock func()
	once   sync.Once
	result project.BuildRun
}

// Begin moves a project from IDLE to RUNNING. It never blocks: if a build is
// already running here or in another process it fails with
// project.ErrBuildAlreadyInProgress. The lease context is cancelled by Cancel
// or when ctx ends.
func (t *Tracker) Begin(ctx context.Context, projectID string) (*Lease, error) {
	st := t.state(projectID)
	unlock, err := t.acquire(projectID, st, project.InProgress(projectID))
	if err != nil {
		return nil, err
	}
	release := func() {
		unlock()
		st.lock.Unlock()
	}

	var (
		lastSeq int64
		runs    []project.BuildRun
	)
	if t.sync != nil {
		if lastSeq, runs, err = t.sync(ctx, projectID); err != nil {
			release()
			return nil, err
		}
	}

	st.mu.Lock()
	if st.gone {
		st.mu.Unlock()
		release()
		return nil, project.NotFound(projectID)
	}
	if t.sync != nil {
		t.seedLocked(st, lastSeq, runs)
	}
	st.lastSeq++
	run := project.BuildRun{
		ProjectID: projectID,
		Seq:       st.lastSeq,
		StartedAt: t.now(),
		Status:    project.StatusRunning,
	}
	runCtx, cancel := context.WithCancel(ctx)
	st.running = &run
	st.cancel = cancel
	st.mu.Unlock()

	return &Lease{t: t, st: st, run: run, ctx: runCtx, unlock: unlock}, nil
}

// Run returns the in-progress run.
func (l *Lease) Run() project.BuildRun { return l.run }

// Context is cancelled when the build should stop.
func (l *Lease) Context() context.Context { return l.ctx }

// Finish records the terminal run, returns the project to IDLE and releases
// the lock. Identity and start time come from the lease. A non-terminal
// status is recorded as FAILURE. Later calls return the first result.
func (l *Lease) Finish(result project.BuildRun) project.BuildRun {
	l.once.Do(func() {
		result.ProjectID = l.run.ProjectID
		result.Seq = l.run.Seq
		result.StartedAt = l.run.StartedAt
		if !result.Status.Terminal() {
			result.Status = project.StatusFailure
		}
		if result.FinishedAt.IsZero() {
			result.FinishedAt = l.t.now()
		}

		st := l.st
		st.mu.Lock()
		st.history = append(st.history, result)
		if over := len(st.history) - l.t.historySize; over > 0 {
			st.history = append(st.history[:0], st.history[over:]...)
		}
		st.running = nil
		cancel := st.cancel
		st.cancel = nil
		st.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		l.result = result
		l.unlock()
		st.lock.Unlock()
	})
	return l.result
}

// Guard runs fn while holding the project lock, or fails with
// project.ErrProjectBusy when a build holds it here or in another process.
// A project forgotten by fn is dropped once the lock is released.
func (t *Tracker) Guard(projectID string, fn func() error) error {
	st := t.state(projectID)
	unlock, err := t.acquire(projectID, st, project.Busy(projectID))
	if err != nil {
		return err
	}
	err = fn()
	unlock()

	st.mu.Lock()
	gone := st.gone
	st.mu.Unlock()
	st.lock.Unlock()
	if gone {
		t.drop(projectID, st)
	}
	return err
}

// Cancel stops the running build of a project. It reports whether one was running.
func (t *Tracker) Cancel(projectID string) bool {
	st, ok := t.lookup(projectID)
	if !ok {
		return false
	}
	st.mu.Lock()
	cancel := st.cancel
	st.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// CancelAll stops every running build and returns how many were signalled.
func (t *Tracker) CancelAll() int {
	t.mu.Lock()
	ids := make([]string, 0, len(t.projects))
	for id := range t.projects {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	n := 0
	for _, id := range ids {
		if t.Cancel(id) {
			n++
		}
	}
	return n
}

// RunningCount returns the number of projects currently building.
func (t *Tracker) RunningCount() int {
	t.mu.Lock()
	states := make([]*state, 0, len(t.projects))
	for _, st := range t.projects {
		states = append(states, st)
	}
	t.mu.Unlock()

	n := 0
	for _, st := range states {
		st.mu.Lock()
		if st.running != nil {
			n++
		}
		st.mu.Unlock()
	}
	return n
}

// State returns RUNNING while a lease is held and IDLE otherwise.
func (t *Tracker) State(projectID string) project.Status {
	st, ok := t.lookup(projectID)
	if !ok {
		return project.StatusIdle
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running != nil {
		return project.StatusRunning
	}
	return project.StatusIdle
}

// Running returns the in-progress run, if any.
func (t *Tracker) Running(projectID string) (project.BuildRun, bool) {
	st, ok := t.lookup(projectID)
	if !ok {
		return project.BuildRun{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running == nil {
		return project.BuildRun{}, false
	}
	return *st.running, true
}

// Latest returns the most recent terminal run.
func (t *Tracker) Latest(projectID string) (project.BuildRun, bool) {
	st, ok := t.lookup(projectID)
	if !ok {
		return project.BuildRun{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.history) == 0 {
		return project.BuildRun{}, false
	}
	return st.history[len(st.history)-1], true
}

// History returns terminal runs newest first.
func (t *Tracker) History(projectID string) []project.BuildRun {
	st, ok := t.lookup(projectID)
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]project.BuildRun, len(st.history))
	for i, r := range st.history {
		out[len(st.history)-1-i] = r
	}
	return out
}

// Seed restores numbering and history after a restart. runs are newest first.
func (t *Tracker) Seed(projectID string, lastSeq int64, runs []project.BuildRun) {
	st := t.state(projectID)
	st.mu.Lock()
	defer st.mu.Unlock()
	t.seedLocked(st, lastSeq, runs)
}

func (t *Tracker) seedLocked(st *state, lastSeq int64, runs []project.BuildRun) {
	if lastSeq > st.lastSeq {
		st.lastSeq = lastSeq
	}
	if len(runs) > t.historySize {
		runs = runs[:t.historySize]
	}
	st.history = st.history[:0]
	for i := len(runs) - 1; i >= 0; i-- {
		st.history = append(st.history, runs[i])
	}
}

// Forget marks a deleted project so builds racing the deletion fail with not
// found. Callers hold the project lock through Guard, which drops the entry
// afterwards.
func (t *Tracker) Forget(projectID string) {
	st := t.state(projectID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gone = true
	st.history = nil
}
