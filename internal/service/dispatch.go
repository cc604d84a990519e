package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/juanibiapina/testrun/internal/logging"
)

// Dispatcher hands an accepted run to something that executes it without
// blocking the caller
type Dispatcher interface {
	Dispatch(runID string) error
}

// ProcessDispatcher runs each accepted run in a detached `testrun execute`
// process, so runs outlive the process that started them.
type ProcessDispatcher struct {
	// ConfigPath is forwarded as --config when set
	ConfigPath string
	// Executable defaults to the running binary
	Executable string
}

// Dispatch starts the executor process in a new session and returns
// without waiting for it
func (d *ProcessDispatcher) Dispatch(runID string) error {
	exe := d.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
	}

	args := []string{"execute", runID}
	if d.ConfigPath != "" {
		args = append(args, "--config", d.ConfigPath)
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start executor: %w", err)
	}

	logging.Logger.Info("dispatched run", "run_id", runID, "pid", cmd.Process.Pid)

	// Don't wait for the process
	go cmd.Wait()

	return nil
}

// InlineDispatcher runs each accepted run on a goroutine of the current
// process. Runs are lost if the process exits, so it suits servers that
// stay up and tests.
type InlineDispatcher struct {
	run func(ctx context.Context, runID string) error
	wg  sync.WaitGroup
}

// NewInlineDispatcher creates a dispatcher that calls run for each run
func NewInlineDispatcher(run func(ctx context.Context, runID string) error) *InlineDispatcher {
	return &InlineDispatcher{run: run}
}

// Dispatch starts the run in the background
func (d *InlineDispatcher) Dispatch(runID string) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Logger.Error("inline run panicked", "run_id", runID, "panic", r)
			}
		}()
		if err := d.run(context.Background(), runID); err != nil {
			logging.Logger.Error("inline run failed", "run_id", runID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has finished
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
