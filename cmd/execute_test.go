package cmd

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/juanibiapina/testrun/internal/config"
	"github.com/juanibiapina/testrun/internal/runstore"
)

// useConfig installs c as the loaded configuration for the test
func useConfig(t *testing.T, c config.Config) {
	t.Helper()
	prev := cfg
	cfg = &c
	t.Cleanup(func() { cfg = prev })
}

func TestExecute_LockUnavailableFailsRun(t *testing.T) {
	c := config.Defaults()
	c.RunsDir = t.TempDir()
	c.Lock.Backend = config.LockBackendRedis
	c.Lock.RedisURL = "redis://127.0.0.1:1"
	useConfig(t, c)

	store := runstore.New(c.RunsDir)
	if _, err := store.CreateRun("run-1", "smoke", ""); err != nil {
		t.Fatal(err)
	}

	if err := executeCmd.RunE(executeCmd, []string{"run-1"}); err == nil {
		t.Fatal("expected execute to fail without a lock backend")
	}

	run, ok := store.ReadStatus("run-1")
	if !ok {
		t.Fatal("run status missing")
	}
	if run.Status != runstore.StatusFailed {
		t.Fatalf("expected run to be failed, got %s", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if run.Message == nil || !strings.HasPrefix(*run.Message, "Runner crashed:") {
		t.Errorf("unexpected message: %v", run.Message)
	}
	if run.PID != os.Getpid() {
		t.Errorf("expected executor pid %d to be recorded, got %d", os.Getpid(), run.PID)
	}
}

func TestClaimRun(t *testing.T) {
	store := runstore.New(t.TempDir())
	store.CreateRun("run-1", "smoke", "")

	claimRun(store, "run-1")

	run, _ := store.ReadStatus("run-1")
	if run.Status != runstore.StatusQueued {
		t.Errorf("claiming must not change the status, got %s", run.Status)
	}
	if run.PID != os.Getpid() {
		t.Errorf("expected pid %d, got %d", os.Getpid(), run.PID)
	}
	if host, _ := os.Hostname(); run.Host != host {
		t.Errorf("expected host %q, got %q", host, run.Host)
	}
}

func TestFailRun_LeavesFinishedAndMissingRuns(t *testing.T) {
	store := runstore.New(t.TempDir())
	store.CreateRun("run-1", "smoke", "")
	store.UpdateStatus("run-1",
		runstore.WithStatus(runstore.StatusSucceeded),
		runstore.WithMessage("Run completed successfully"),
	)

	failRun(store, "run-1", errors.New("boom"))
	failRun(store, "missing", errors.New("boom"))

	run, _ := store.ReadStatus("run-1")
	if run.Status != runstore.StatusSucceeded || *run.Message != "Run completed successfully" {
		t.Errorf("finished run was modified: %s %q", run.Status, *run.Message)
	}
	if store.Exists("missing") {
		t.Error("failRun must not create unknown runs")
	}
}
