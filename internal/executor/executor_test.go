package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juanibiapina/testrun/internal/runstore"
)

const testCommand = "pytest -m ${TOOLBOX_TEST_SUITE} --junitxml=${TOOLBOX_JUNIT_PATH}"

func newTestExecutor(t *testing.T, launcher Launcher, opts Options) (*Executor, *runstore.Store) {
	t.Helper()
	store := runstore.New(t.TempDir())
	if opts.Command == nil {
		opts.Command = strings.Fields(testCommand)
	}
	if opts.DefaultBaseURL == "" {
		opts.DefaultBaseURL = "https://dashboard.example.com"
	}
	return New(store, launcher, opts), store
}

func createRun(t *testing.T, store *runstore.Store, runID string) {
	t.Helper()
	if _, err := store.CreateRun(runID, "smoke", ""); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
}

// junitScript writes report to the junit path and exits with code
func junitScript(report string, code int) func(h *FakeProcessHandle) {
	return func(h *FakeProcessHandle) {
		h.Emit("collected 10 items")
		if report != "" {
			os.WriteFile(h.Getenv("TOOLBOX_JUNIT_PATH"), []byte(report), 0644)
		}
		h.Exit(code)
	}
}

func TestExecute_Succeeded(t *testing.T) {
	report := `<testsuites><testsuite tests="5" failures="0" errors="0" skipped="1"/></testsuites>`
	e, store := newTestExecutor(t, NewFakeLauncher(junitScript(report, 0)), Options{})
	createRun(t, store, "run-ok")

	result, err := e.Execute(context.Background(), "run-ok", "smoke", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != runstore.StatusSucceeded {
		t.Errorf("expected succeeded, got %s", result.Status)
	}
	expected := runstore.Summary{Total: 5, Passed: 4, Failed: 0, Skipped: 1}
	if result.Summary != expected {
		t.Errorf("summary = %+v, expected %+v", result.Summary, expected)
	}

	run, ok := store.ReadStatus("run-ok")
	if !ok {
		t.Fatal("status missing")
	}
	if run.Status != runstore.StatusSucceeded {
		t.Errorf("persisted status = %s", run.Status)
	}
	if run.StartedAt == nil || run.FinishedAt == nil {
		t.Error("expected started_at and finished_at to be set")
	}
	if run.Message == nil || *run.Message != messageSucceeded {
		t.Errorf("unexpected message: %v", run.Message)
	}
	if run.PID != os.Getpid() {
		t.Errorf("expected executor pid %d, got %d", os.Getpid(), run.PID)
	}

	summary, ok := store.ReadSummary("run-ok")
	if !ok || summary.Total != 5 || summary.RunID != "run-ok" {
		t.Errorf("persisted summary = %+v (ok=%v)", summary, ok)
	}
}

func TestExecute_FailuresOverrideExitCode(t *testing.T) {
	report := `<testsuite tests="10" failures="1" errors="0" skipped="2"/>`
	e, store := newTestExecutor(t, NewFakeLauncher(junitScript(report, 0)), Options{})
	createRun(t, store, "run-failures")

	result, err := e.Execute(context.Background(), "run-failures", "smoke", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	expected := runstore.Summary{Total: 10, Passed: 7, Failed: 1, Skipped: 2}
	if result.Summary != expected {
		t.Errorf("summary = %+v, expected %+v", result.Summary, expected)
	}
	if result.Status != runstore.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestExecute_MissingReport(t *testing.T) {
	e, store := newTestExecutor(t, NewFakeLauncher(junitScript("", 139)), Options{})
	createRun(t, store, "run-crash")

	result, err := e.Execute(context.Background(), "run-crash", "smoke", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Summary != runstore.FallbackSummary() {
		t.Errorf("summary = %+v, expected fallback", result.Summary)
	}
	if result.Status != runstore.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}

	run, _ := store.ReadStatus("run-crash")
	if run.Message == nil || *run.Message != messageFailed {
		t.Errorf("unexpected message: %v", run.Message)
	}
	logs := store.TailLogs("run-crash", 10)
	if !strings.Contains(logs, "Test process exited with code 139") {
		t.Errorf("expected exit marker in logs, got:\n%s", logs)
	}
}

func TestExecute_ExitCodeFailsCleanReport(t *testing.T) {
	report := `<testsuite tests="2" failures="0" errors="0" skipped="0"/>`
	e, store := newTestExecutor(t, NewFakeLauncher(junitScript(report, 1)), Options{})
	createRun(t, store, "run-exit")

	result, err := e.Execute(context.Background(), "run-exit", "smoke", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != runstore.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestExecute_SummaryWriteError(t *testing.T) {
	report := `<testsuite tests="5" failures="0" errors="0" skipped="0"/>`
	e, store := newTestExecutor(t, NewFakeLauncher(junitScript(report, 0)), Options{})
	createRun(t, store, "run-sum")

	// a non-empty directory in place of summary.json cannot be replaced
	summaryPath := filepath.Join(store.RunDir("run-sum"), "summary.json")
	os.Remove(summaryPath)
	writeFile(t, filepath.Join(summaryPath, "blocker"), "x")

	result, err := e.Execute(context.Background(), "run-sum", "smoke", "")
	if err == nil {
		t.Fatal("expected the summary write error to be returned")
	}
	if !strings.Contains(err.Error(), "failed to write summary") {
		t.Errorf("unexpected error: %v", err)
	}
	if result == nil || result.Status != runstore.StatusFailed {
		t.Fatalf("expected failed result, got %+v", result)
	}

	run, _ := store.ReadStatus("run-sum")
	if run.Status != runstore.StatusFailed {
		t.Errorf("persisted status = %s, expected failed", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if run.Message == nil || !strings.HasPrefix(*run.Message, "Runner crashed:") {
		t.Errorf("unexpected message: %v", run.Message)
	}
}

func TestExecute_StartError(t *testing.T) {
	launcher := NewFakeLauncher(nil)
	launcher.SetStartError(errors.New("exec: \"pytest\": executable file not found"))
	e, store := newTestExecutor(t, launcher, Options{})
	createRun(t, store, "run-nostart")

	result, err := e.Execute(context.Background(), "run-nostart", "smoke", "")
	if err == nil {
		t.Fatal("expected supervision error")
	}
	if result == nil || result.Status != runstore.StatusFailed {
		t.Fatalf("expected failed result, got %+v", result)
	}

	run, _ := store.ReadStatus("run-nostart")
	if run.Status != runstore.StatusFailed {
		t.Errorf("persisted status = %s", run.Status)
	}
	if run.Message == nil || !strings.HasPrefix(*run.Message, "Runner crashed:") {
		t.Errorf("unexpected message: %v", run.Message)
	}
	if summary, ok := store.ReadSummary("run-nostart"); !ok || summary.Failed != 1 {
		t.Errorf("expected fallback summary, got %+v", summary)
	}
	if logs := store.TailLogs("run-nostart", 10); !strings.Contains(logs, "Runner crashed:") {
		t.Errorf("expected crash marker in logs, got:\n%s", logs)
	}
}

func TestExecute_WaitError(t *testing.T) {
	e, store := newTestExecutor(t, NewFakeLauncher(func(h *FakeProcessHandle) {
		h.Fail(errors.New("wait: no child processes"))
	}), Options{})
	createRun(t, store, "run-waitfail")

	_, err := e.Execute(context.Background(), "run-waitfail", "smoke", "")
	if err == nil {
		t.Fatal("expected error")
	}
	run, _ := store.ReadStatus("run-waitfail")
	if run.Status != runstore.StatusFailed {
		t.Errorf("expected failed, got %s", run.Status)
	}
}

func TestExecute_StreamsLogsWhileRunning(t *testing.T) {
	proceed := make(chan struct{})
	launcher := NewFakeLauncher(func(h *FakeProcessHandle) {
		h.Emit("first line", "second line")
		<-proceed
		h.Emit("third line")
		h.Exit(0)
	})
	var echo bytes.Buffer
	e, store := newTestExecutor(t, launcher, Options{Echo: &echo})
	createRun(t, store, "run-stream")

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Execute(context.Background(), "run-stream", "smoke", "")
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(store.TailLogs("run-stream", 10), "second line") {
		if time.Now().After(deadline) {
			t.Fatal("log lines not visible while running")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if run, _ := store.ReadStatus("run-stream"); run.Status != runstore.StatusRunning {
		t.Errorf("expected running while process is alive, got %s", run.Status)
	}

	close(proceed)
	<-done

	logs := store.TailLogs("run-stream", 100)
	for _, want := range []string{"Starting command: pytest -m smoke", "first line", "third line", "Test process exited with code 0"} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %q:\n%s", want, logs)
		}
	}
	if echo.String() != "first line\nsecond line\nthird line\n" {
		t.Errorf("unexpected echo output: %q", echo.String())
	}
}

func TestExecute_InjectsEnvironment(t *testing.T) {
	launcher := NewFakeLauncher(junitScript("", 0))
	e, store := newTestExecutor(t, launcher, Options{})
	createRun(t, store, "run-env")
	createRun(t, store, "run-env-url")

	if _, err := e.Execute(context.Background(), "run-env", "smoke", ""); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	h := launcher.LastHandle()

	expected := map[string]string{
		"PYTHONUNBUFFERED":      "1",
		"TOOLBOX_RUN_ID":        "run-env",
		"TOOLBOX_RUN_DIR":       store.RunDir("run-env"),
		"TOOLBOX_TEST_SUITE":    "smoke",
		"TOOLBOX_TEST_BASE_URL": "https://dashboard.example.com",
		"TOOLBOX_JUNIT_PATH":    filepath.Join(store.RunDir("run-env"), "junit.xml"),
		"TOOLBOX_HTML_PATH":     filepath.Join(store.RunDir("run-env"), "report.html"),
	}
	for key, want := range expected {
		if got := h.Getenv(key); got != want {
			t.Errorf("%s = %q, expected %q", key, got, want)
		}
	}

	wantCmd := []string{"pytest", "-m", "smoke", "--junitxml=" + store.JUnitPath("run-env")}
	if strings.Join(h.Command, " ") != strings.Join(wantCmd, " ") {
		t.Errorf("command = %v, expected %v", h.Command, wantCmd)
	}

	if _, err := e.Execute(context.Background(), "run-env-url", "smoke", "https://staging.example.com"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := launcher.LastHandle().Getenv("TOOLBOX_TEST_BASE_URL"); got != "https://staging.example.com" {
		t.Errorf("base url = %q", got)
	}
}

func TestExecute_Timeout(t *testing.T) {
	launcher := NewFakeLauncher(func(h *FakeProcessHandle) {
		h.Emit("hanging")
	})
	e, store := newTestExecutor(t, launcher, Options{Timeout: 50 * time.Millisecond})
	createRun(t, store, "run-timeout")

	result, err := e.Execute(context.Background(), "run-timeout", "smoke", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != runstore.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	run, _ := store.ReadStatus("run-timeout")
	if run.Message == nil || !strings.Contains(*run.Message, "exceeded") {
		t.Errorf("unexpected message: %v", run.Message)
	}
}

func TestExecute_ArchivesArtifacts(t *testing.T) {
	launcher := NewFakeLauncher(func(h *FakeProcessHandle) {
		dir := h.Getenv("TOOLBOX_RUN_DIR")
		os.MkdirAll(filepath.Join(dir, "screenshots"), 0755)
		os.WriteFile(filepath.Join(dir, "screenshots", "step1.png"), []byte("png"), 0644)
		os.MkdirAll(filepath.Join(dir, "videos"), 0755)
		h.Exit(0)
	})
	e, store := newTestExecutor(t, launcher, Options{})
	createRun(t, store, "run-artifacts")

	if _, err := e.Execute(context.Background(), "run-artifacts", "smoke", ""); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	dir := store.RunDir("run-artifacts")
	if _, err := os.Stat(filepath.Join(dir, "screenshots.zip")); err != nil {
		t.Errorf("expected screenshots.zip: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "videos.zip")); !os.IsNotExist(err) {
		t.Error("empty videos directory should not be archived")
	}
}

func TestRealLauncher(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	store := runstore.New(t.TempDir())
	createRun(t, store, "run-real")
	e := New(store, RealLauncher{}, Options{
		Command: []string{"/bin/sh", "-c", "echo out-$TOOLBOX_TEST_SUITE; echo err >&2; exit 3"},
	})

	result, err := e.Execute(context.Background(), "run-real", "smoke", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
	logs := store.TailLogs("run-real", 10)
	if !strings.Contains(logs, "out-smoke") || !strings.Contains(logs, "err") {
		t.Errorf("expected stdout and stderr in logs, got:\n%s", logs)
	}
}

func TestRealLauncher_TimeoutKillsProcessGroup(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	store := runstore.New(t.TempDir())
	createRun(t, store, "run-slow")
	e := New(store, RealLauncher{}, Options{
		Command: []string{"/bin/sh", "-c", "sleep 30 & sleep 30"},
		Timeout: 200 * time.Millisecond,
	})

	start := time.Now()
	result, err := e.Execute(context.Background(), "run-slow", "smoke", "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
	if result.Status != runstore.StatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}
