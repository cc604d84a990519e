package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// ProcessHandle represents a started test process
type ProcessHandle interface {
	Pid() int
	// Output streams the combined stdout and stderr of the process
	Output() io.Reader
	// Wait blocks until the process exits and returns its exit code
	Wait() (int, error)
	// Close releases the output stream so pending reads return
	Close() error
}

// Launcher handles process creation
type Launcher interface {
	Start(ctx context.Context, command []string, workdir string, env []string) (ProcessHandle, error)
}

// RealLauncher implements Launcher using os/exec
type RealLauncher struct{}

// realProcessHandle wraps exec.Cmd to implement ProcessHandle
type realProcessHandle struct {
	cmd    *exec.Cmd
	output *os.File
}

func (h *realProcessHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *realProcessHandle) Output() io.Reader {
	return h.output
}

func (h *realProcessHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 when killed by a signal
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (h *realProcessHandle) Close() error {
	err := h.output.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

// Start starts the test process in its own process group with stdout and
// stderr sharing one pipe. Cancelling ctx kills the whole group.
func (RealLauncher) Start(ctx context.Context, command []string, workdir string, env []string) (ProcessHandle, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = workdir
	cmd.Env = env

	// Create a new process group so we can signal all children together
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	if err := cmd.Start(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// Close the write end in this process (child keeps it)
	writer.Close()

	return &realProcessHandle{cmd: cmd, output: reader}, nil
}
