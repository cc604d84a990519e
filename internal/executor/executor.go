// Package executor drives a single run from queued to a terminal state by
// supervising the external test process.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/metrics"
	"github.com/juanibiapina/testrun/internal/runstore"
)

// drainTimeout bounds how long output is read after the process exits.
// Grandchildren that inherited the pipe can keep it open indefinitely.
const drainTimeout = 2 * time.Second

const (
	messageSucceeded = "Run completed successfully"
	messageFailed    = "Run failed. See logs and artifacts for details."
)

// Options configures an Executor
type Options struct {
	// Command is the test executable and its arguments. ${TOOLBOX_*}
	// references are expanded from the run environment.
	Command []string
	Workdir string
	// DefaultBaseURL is used when a run has no base URL
	DefaultBaseURL string
	// Timeout kills the process group when exceeded. Zero means no limit.
	Timeout time.Duration
	// Echo receives a copy of every output line when set
	Echo io.Writer
}

// Executor runs test processes and records their outcome
type Executor struct {
	store    *runstore.Store
	launcher Launcher
	opts     Options
	hostname string
}

// Result is the terminal outcome of a run
type Result struct {
	RunID    string           `json:"run_id"`
	Status   runstore.Status  `json:"status"`
	Summary  runstore.Summary `json:"summary"`
	ExitCode int              `json:"exit_code"`
}

// New creates an executor
func New(store *runstore.Store, launcher Launcher, opts Options) *Executor {
	hostname, _ := os.Hostname()
	return &Executor{
		store:    store,
		launcher: launcher,
		opts:     opts,
		hostname: hostname,
	}
}

// outcome is what supervision observed about the process
type outcome struct {
	exitCode int
	timedOut bool
	err      error
}

// Execute runs the test process for runID and always leaves the run in a
// terminal state. The returned error reports a supervision failure or a
// summary that could not be stored; the run is still finalized as failed in
// that case.
func (e *Executor) Execute(ctx context.Context, runID, suite, baseURL string) (*Result, error) {
	started := time.Now()
	if _, err := e.store.UpdateStatus(runID,
		runstore.WithStatus(runstore.StatusRunning),
		runstore.WithStartedAt(runstore.Now()),
		runstore.WithMessage(""),
		runstore.WithExecutor(os.Getpid(), e.hostname),
	); err != nil {
		return nil, fmt.Errorf("failed to mark run running: %w", err)
	}

	logging.Logger.Info("run started", "run_id", runID, "suite", suite)

	out := e.supervise(ctx, runID, suite, baseURL)
	result, err := e.finalize(runID, &out)
	if err != nil {
		return nil, err
	}

	metrics.RecordRunFinished(suite, string(result.Status), time.Since(started))
	logging.Logger.Info("run finished", "run_id", runID, "status", result.Status,
		"exit_code", result.ExitCode, "failed", result.Summary.Failed)

	if out.err != nil {
		return result, out.err
	}
	return result, nil
}

// supervise runs the process and streams its output into the run log.
// Panics are converted into an error so finalization still happens.
func (e *Executor) supervise(ctx context.Context, runID, suite, baseURL string) (out outcome) {
	out.exitCode = -1

	logw, err := e.store.OpenLog(runID)
	if err != nil {
		out.err = err
		return out
	}
	defer logw.Close()

	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("panic: %v", r)
		}
		if out.err != nil {
			logw.Markf("Runner crashed: %v", out.err)
		}
	}()

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	vars := e.runEnv(runID, suite, baseURL)
	command := expandCommand(e.opts.Command, vars)
	env := os.Environ()
	for _, kv := range vars {
		env = append(env, kv[0]+"="+kv[1])
	}

	logw.Markf("Starting command: %s", strings.Join(command, " "))

	handle, err := e.launcher.Start(ctx, command, e.opts.Workdir, env)
	if err != nil {
		out.err = err
		return out
	}
	defer handle.Close()

	copied := make(chan struct{})
	go func() {
		defer close(copied)
		e.copyLines(handle.Output(), logw)
	}()

	code, err := handle.Wait()
	select {
	case <-copied:
	case <-time.After(drainTimeout):
		logging.Logger.Warn("output still open after exit", "run_id", runID)
		handle.Close()
		<-copied
	}

	if err != nil {
		out.err = fmt.Errorf("failed to wait for test process: %w", err)
		return out
	}
	out.exitCode = code
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out.timedOut = true
		logw.Markf("Test process exceeded %s and was killed", e.opts.Timeout)
		return out
	}
	logw.Markf("Test process exited with code %d", code)
	return out
}

// copyLines appends each output line to the log as it arrives
func (e *Executor) copyLines(r io.Reader, logw *runstore.LogWriter) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			logw.WriteLine(line)
			if e.opts.Echo != nil {
				io.WriteString(e.opts.Echo, line)
				if !strings.HasSuffix(line, "\n") {
					io.WriteString(e.opts.Echo, "\n")
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// finalize records the summary, archives media and sets the terminal status.
// A summary that cannot be stored is recorded on out as a crash.
func (e *Executor) finalize(runID string, out *outcome) (*Result, error) {
	summary, err := ParseJUnit(e.store.JUnitPath(runID))
	if err != nil {
		logging.Logger.Debug("no usable junit report", "run_id", runID, "error", err)
		summary = runstore.FallbackSummary()
	}
	if _, err := e.store.WriteSummary(runID, summary); err != nil {
		logging.Logger.Error("failed to write summary", "run_id", runID, "error", err)
		out.err = errors.Join(out.err, fmt.Errorf("failed to write summary: %w", err))
	}

	runDir := e.store.RunDir(runID)
	for _, name := range []string{runstore.ScreenshotsDir, runstore.VideosDir} {
		dir := filepath.Join(runDir, name)
		if _, err := zipIfHasFiles(dir, dir+".zip"); err != nil {
			logging.Logger.Warn("failed to archive artifacts", "run_id", runID, "dir", name, "error", err)
		}
	}

	status := runstore.StatusFailed
	message := messageFailed
	switch {
	case out.err != nil:
		message = fmt.Sprintf("Runner crashed: %v", out.err)
	case out.timedOut:
		message = fmt.Sprintf("Run exceeded %s and was stopped", e.opts.Timeout)
	case out.exitCode == 0 && summary.Failed == 0:
		status = runstore.StatusSucceeded
		message = messageSucceeded
	}

	run, err := e.store.UpdateStatus(runID,
		runstore.WithStatus(status),
		runstore.WithFinishedAt(runstore.Now()),
		runstore.WithMessage(message),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize run: %w", err)
	}

	return &Result{
		RunID:    runID,
		Status:   run.Status,
		Summary:  summary,
		ExitCode: out.exitCode,
	}, nil
}

// runEnv returns the variables injected into the test process, in order
func (e *Executor) runEnv(runID, suite, baseURL string) [][2]string {
	if baseURL == "" {
		baseURL = e.opts.DefaultBaseURL
	}
	return [][2]string{
		{"PYTHONUNBUFFERED", "1"},
		{"TOOLBOX_RUN_ID", runID},
		{"TOOLBOX_RUN_DIR", e.store.RunDir(runID)},
		{"TOOLBOX_TEST_BASE_URL", baseURL},
		{"TOOLBOX_TEST_SUITE", suite},
		{"TOOLBOX_JUNIT_PATH", e.store.JUnitPath(runID)},
		{"TOOLBOX_HTML_PATH", e.store.ReportPath(runID)},
	}
}

// expandCommand substitutes ${NAME} references from vars. Unknown names are
// left untouched.
func expandCommand(command []string, vars [][2]string) []string {
	lookup := make(map[string]string, len(vars))
	for _, kv := range vars {
		lookup[kv[0]] = kv[1]
	}
	expanded := make([]string, len(command))
	for i, arg := range command {
		expanded[i] = os.Expand(arg, func(name string) string {
			if v, ok := lookup[name]; ok {
				return v
			}
			return "${" + name + "}"
		})
	}
	return expanded
}
