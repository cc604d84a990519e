// Package guard admits at most one non-terminal run at a time.
//
// Admission takes an atomic TTL lock first (when a locker is configured) and
// then scans recent runs as a second check, which also catches runs created
// by writers that bypassed the lock. Runs that outlive the TTL, or whose
// executor process has disappeared, are marked failed and no longer block.
package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/juanibiapina/testrun/internal/lock"
	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/metrics"
	"github.com/juanibiapina/testrun/internal/runstore"
)

// ScanLimit bounds how many recent runs are inspected for an active one
const ScanLimit = 500

// creationGrace is how long a lock may exist before its run record does
const creationGrace = time.Minute

// ActiveRunError reports the run that blocks a new one
type ActiveRunError struct {
	RunID  string
	Status runstore.Status
}

func (e *ActiveRunError) Error() string {
	return fmt.Sprintf("run %s is currently %s", e.RunID, e.Status)
}

// Guard enforces the single active run rule
type Guard struct {
	store  *runstore.Store
	locker lock.Locker
	ttl    time.Duration

	hostname string
	alive    func(pid int, startedAt time.Time) bool
	now      func() time.Time
}

// New creates a guard. locker may be nil, in which case admission relies on
// the scan alone.
func New(store *runstore.Store, locker lock.Locker, ttl time.Duration) *Guard {
	host, _ := os.Hostname()
	return &Guard{
		store:    store,
		locker:   locker,
		ttl:      ttl,
		hostname: host,
		alive:    executorAlive,
		now:      runstore.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// SetProcessCheck replaces the executor liveness check. Used by tests.
func (g *Guard) SetProcessCheck(alive func(pid int, startedAt time.Time) bool) {
	g.alive = alive
}

// TTL returns the maximum lifetime of a non-terminal run
func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// FindActiveRun returns the most recent non-terminal run that is not stale.
// Stale runs found on the way are marked failed.
func (g *Guard) FindActiveRun(ctx context.Context) (*runstore.Run, bool) {
	for _, run := range g.store.RecentRuns(ScanLimit) {
		if run.Status.IsTerminal() {
			continue
		}
		if reason, label := g.staleReason(&run); reason != "" {
			g.reap(ctx, &run, reason, label)
			continue
		}
		return &run, true
	}
	return nil, false
}

// staleReason explains why a non-terminal run no longer counts as active
func (g *Guard) staleReason(run *runstore.Run) (reason string, label string) {
	since := run.SortTime()
	if !since.IsZero() && g.now().Sub(since) > g.ttl {
		return fmt.Sprintf("exceeded the maximum run duration of %s", g.ttl), "ttl"
	}

	// A queued run carries a pid once its detached executor has claimed it
	if run.PID > 0 && !since.IsZero() {
		if run.Host == "" || run.Host == g.hostname {
			if !g.alive(run.PID, since) {
				return fmt.Sprintf("executor process %d exited without reporting a result", run.PID), "orphan"
			}
		}
	}
	return "", ""
}

func (g *Guard) reap(ctx context.Context, run *runstore.Run, reason, label string) {
	logging.Logger.Warn("marking stale run failed", "run_id", run.RunID, "status", run.Status, "reason", reason)

	_, err := g.store.UpdateStatus(run.RunID,
		runstore.WithStatus(runstore.StatusFailed),
		runstore.WithFinishedAt(g.now()),
		runstore.WithMessage("Run marked failed: "+reason),
	)
	if err != nil {
		logging.Logger.Error("failed to mark stale run", "run_id", run.RunID, "error", err)
		return
	}
	metrics.RecordStaleRun(label)
	g.Release(ctx, run.RunID)
}

// Acquire admits runID as the single active run or returns *ActiveRunError
// naming the run that blocks it.
func (g *Guard) Acquire(ctx context.Context, runID string) error {
	if g.locker != nil {
		if err := g.acquireLock(ctx, runID); err != nil {
			return err
		}
	}

	if active, ok := g.FindActiveRun(ctx); ok && active.RunID != runID {
		g.Release(ctx, runID)
		return &ActiveRunError{RunID: active.RunID, Status: statusOrQueued(active.Status)}
	}
	return nil
}

func (g *Guard) acquireLock(ctx context.Context, runID string) error {
	// second attempt runs after clearing a stale holder
	for attempt := 0; attempt < 2; attempt++ {
		ok, holder, err := g.locker.Acquire(ctx, runID, g.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire active-run lock: %w", err)
		}
		if ok {
			return nil
		}
		if holder == "" {
			continue
		}

		if active := g.liveHolder(ctx, holder); active != nil {
			return active
		}

		logging.Logger.Warn("releasing stale active-run lock", "holder", holder)
		if err := g.locker.Release(ctx, holder); err != nil && !errors.Is(err, lock.ErrNotHeld) {
			return fmt.Errorf("failed to release stale lock: %w", err)
		}
	}
	return errors.New("failed to acquire active-run lock")
}

// liveHolder returns an ActiveRunError when the lock holder still counts as
// active, or nil when the lock is stale.
func (g *Guard) liveHolder(ctx context.Context, holder string) *ActiveRunError {
	run, ok := g.store.ReadStatus(holder)
	if !ok {
		// the holder may be between taking the lock and creating its record
		if g.lockAge(ctx) < creationGrace {
			return &ActiveRunError{RunID: holder, Status: runstore.StatusQueued}
		}
		return nil
	}
	if run.Status.IsTerminal() {
		return nil
	}
	if reason, label := g.staleReason(&run); reason != "" {
		g.reap(ctx, &run, reason, label)
		return nil
	}
	return &ActiveRunError{RunID: holder, Status: statusOrQueued(run.Status)}
}

func (g *Guard) lockAge(ctx context.Context) time.Duration {
	info, err := g.locker.Current(ctx)
	if err != nil || info == nil || info.ExpiresAt.IsZero() {
		return 0
	}
	acquiredAt := info.ExpiresAt.Add(-g.ttl)
	return time.Since(acquiredAt)
}

// Release gives up the lock if runID still holds it
func (g *Guard) Release(ctx context.Context, runID string) {
	if g.locker == nil {
		return
	}
	err := g.locker.Release(ctx, runID)
	if err != nil && !errors.Is(err, lock.ErrNotHeld) {
		logging.Logger.Error("failed to release active-run lock", "run_id", runID, "error", err)
	}
}

func statusOrQueued(s runstore.Status) runstore.Status {
	if s == "" {
		return runstore.StatusQueued
	}
	return s
}
