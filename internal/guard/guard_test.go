package guard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juanibiapina/testrun/internal/lock"
	"github.com/juanibiapina/testrun/internal/runstore"
)

func newTestGuard(t *testing.T, withLock bool) (*Guard, *runstore.Store, lock.Locker) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "runs")
	store := runstore.New(root)

	var locker lock.Locker
	if withLock {
		l, err := lock.OpenSQLiteLocker(filepath.Join(root, ".state", "locks.db"), "active")
		if err != nil {
			t.Fatalf("failed to open locker: %v", err)
		}
		t.Cleanup(func() { l.Close() })
		locker = l
	}

	g := New(store, locker, 6*time.Hour)
	g.SetProcessCheck(func(int, time.Time) bool { return true })
	return g, store, locker
}

func TestFindActiveRun_None(t *testing.T) {
	g, store, _ := newTestGuard(t, false)
	ctx := context.Background()

	if _, ok := g.FindActiveRun(ctx); ok {
		t.Fatal("expected no active run in empty store")
	}

	store.CreateRun("done", "smoke", "")
	store.UpdateStatus("done", runstore.WithStatus(runstore.StatusSucceeded))

	if _, ok := g.FindActiveRun(ctx); ok {
		t.Error("terminal runs should not be active")
	}
}

func TestFindActiveRun_Queued(t *testing.T) {
	g, store, _ := newTestGuard(t, false)

	store.CreateRun("run-1", "smoke", "")

	active, ok := g.FindActiveRun(context.Background())
	if !ok {
		t.Fatal("expected active run")
	}
	if active.RunID != "run-1" || active.Status != runstore.StatusQueued {
		t.Errorf("unexpected active run %+v", active)
	}
}

func TestFindActiveRun_StaleByTTL(t *testing.T) {
	g, store, _ := newTestGuard(t, false)
	store.CreateRun("run-1", "smoke", "")
	store.UpdateStatus("run-1", runstore.WithStatus(runstore.StatusRunning), runstore.WithStartedAt(runstore.Now()))

	g.SetClock(func() time.Time { return runstore.Now().Add(7 * time.Hour) })

	if _, ok := g.FindActiveRun(context.Background()); ok {
		t.Fatal("expected stale run to be ignored")
	}

	run, _ := store.ReadStatus("run-1")
	if run.Status != runstore.StatusFailed {
		t.Errorf("expected stale run to be marked failed, got %s", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if run.Message == nil || !strings.Contains(*run.Message, "maximum run duration") {
		t.Errorf("unexpected message %v", run.Message)
	}
}

func TestFindActiveRun_Orphan(t *testing.T) {
	g, store, _ := newTestGuard(t, false)
	hostname, _ := os.Hostname()

	store.CreateRun("run-1", "smoke", "")
	store.UpdateStatus("run-1",
		runstore.WithStatus(runstore.StatusRunning),
		runstore.WithStartedAt(runstore.Now()),
		runstore.WithExecutor(99999, hostname),
	)

	var checked int
	g.SetProcessCheck(func(pid int, _ time.Time) bool {
		checked = pid
		return false
	})

	if _, ok := g.FindActiveRun(context.Background()); ok {
		t.Fatal("expected orphaned run to be ignored")
	}
	if checked != 99999 {
		t.Errorf("expected pid 99999 to be checked, got %d", checked)
	}

	run, _ := store.ReadStatus("run-1")
	if run.Status != runstore.StatusFailed {
		t.Errorf("expected orphan to be marked failed, got %s", run.Status)
	}
}

func TestFindActiveRun_QueuedOrphan(t *testing.T) {
	g, store, _ := newTestGuard(t, false)
	hostname, _ := os.Hostname()

	store.CreateRun("run-1", "smoke", "")
	store.UpdateStatus("run-1", runstore.WithExecutor(99999, hostname))

	g.SetProcessCheck(func(pid int, _ time.Time) bool {
		return pid != 99999
	})

	if _, ok := g.FindActiveRun(context.Background()); ok {
		t.Fatal("expected queued run with a dead executor to be ignored")
	}

	run, _ := store.ReadStatus("run-1")
	if run.Status != runstore.StatusFailed {
		t.Errorf("expected queued orphan to be marked failed, got %s", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestFindActiveRun_QueuedWithoutExecutorKept(t *testing.T) {
	g, store, _ := newTestGuard(t, false)

	store.CreateRun("run-1", "smoke", "")
	g.SetProcessCheck(func(int, time.Time) bool {
		t.Error("process check should not run before an executor claims the run")
		return false
	})

	run, ok := g.FindActiveRun(context.Background())
	if !ok || run.RunID != "run-1" {
		t.Fatalf("expected run-1 to stay active, got %v %v", run, ok)
	}
}

func TestFindActiveRun_OtherHostNotChecked(t *testing.T) {
	g, store, _ := newTestGuard(t, false)

	store.CreateRun("run-1", "smoke", "")
	store.UpdateStatus("run-1",
		runstore.WithStatus(runstore.StatusRunning),
		runstore.WithStartedAt(runstore.Now()),
		runstore.WithExecutor(99999, "some-other-host"),
	)
	g.SetProcessCheck(func(int, time.Time) bool {
		t.Error("process check should not run for another host")
		return false
	})

	if _, ok := g.FindActiveRun(context.Background()); !ok {
		t.Error("expected run on another host to stay active")
	}
}

func TestAcquire_ScanOnly(t *testing.T) {
	g, store, _ := newTestGuard(t, false)
	ctx := context.Background()

	if err := g.Acquire(ctx, "run-1"); err != nil {
		t.Fatalf("expected first acquire to succeed, got %v", err)
	}
	store.CreateRun("run-1", "smoke", "")

	err := g.Acquire(ctx, "run-2")
	var active *ActiveRunError
	if !errors.As(err, &active) {
		t.Fatalf("expected ActiveRunError, got %v", err)
	}
	if active.RunID != "run-1" || active.Status != runstore.StatusQueued {
		t.Errorf("unexpected conflict %+v", active)
	}
}

func TestAcquire_WithLock(t *testing.T) {
	g, store, locker := newTestGuard(t, true)
	ctx := context.Background()

	if err := g.Acquire(ctx, "run-1"); err != nil {
		t.Fatalf("expected first acquire to succeed, got %v", err)
	}

	// the holder has not written its record yet
	var active *ActiveRunError
	if err := g.Acquire(ctx, "run-2"); !errors.As(err, &active) || active.RunID != "run-1" {
		t.Fatalf("expected conflict with run-1, got %v", err)
	}

	store.CreateRun("run-1", "smoke", "")
	store.UpdateStatus("run-1", runstore.WithStatus(runstore.StatusRunning))

	err := g.Acquire(ctx, "run-2")
	if !errors.As(err, &active) || active.Status != runstore.StatusRunning {
		t.Fatalf("expected conflict with running run-1, got %v", err)
	}

	// executor finishes but dies before releasing: the lock is stale
	store.UpdateStatus("run-1", runstore.WithStatus(runstore.StatusSucceeded))

	if err := g.Acquire(ctx, "run-2"); err != nil {
		t.Fatalf("expected stale lock to be taken over, got %v", err)
	}
	info, _ := locker.Current(ctx)
	if info == nil || info.Holder != "run-2" {
		t.Errorf("expected run-2 to hold the lock, got %+v", info)
	}
}

func TestAcquire_ScanCatchesUnlockedRun(t *testing.T) {
	g, store, locker := newTestGuard(t, true)
	ctx := context.Background()

	// created by a writer that did not take the lock
	store.CreateRun("legacy", "smoke", "")

	var active *ActiveRunError
	if err := g.Acquire(ctx, "run-1"); !errors.As(err, &active) || active.RunID != "legacy" {
		t.Fatalf("expected conflict with legacy run, got %v", err)
	}

	info, _ := locker.Current(ctx)
	if info != nil {
		t.Errorf("expected lock to be released after scan conflict, got %+v", info)
	}
}

func TestRelease(t *testing.T) {
	g, _, locker := newTestGuard(t, true)
	ctx := context.Background()

	g.Acquire(ctx, "run-1")
	g.Release(ctx, "run-2") // not the holder: no effect
	if info, _ := locker.Current(ctx); info == nil || info.Holder != "run-1" {
		t.Fatalf("expected run-1 to keep the lock, got %+v", info)
	}

	g.Release(ctx, "run-1")
	if info, _ := locker.Current(ctx); info != nil {
		t.Errorf("expected lock to be free, got %+v", info)
	}
}

func TestExecutorAlive_CurrentProcess(t *testing.T) {
	if !executorAlive(os.Getpid(), time.Now()) {
		t.Error("expected current process to be alive")
	}
	// a process started long after the run cannot be its executor
	if executorAlive(os.Getpid(), time.Now().Add(-24*time.Hour)) {
		t.Error("expected recycled pid to be rejected")
	}
}
