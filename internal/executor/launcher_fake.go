package executor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// FakeProcessHandle implements ProcessHandle for testing
type FakeProcessHandle struct {
	pid     int
	Command []string
	Env     []string

	reader *io.PipeReader
	writer *io.PipeWriter

	mu       sync.Mutex
	exited   bool
	exitCode int
	waitErr  error
	waitCh   chan struct{}
}

func (h *FakeProcessHandle) Pid() int {
	return h.pid
}

func (h *FakeProcessHandle) Output() io.Reader {
	return h.reader
}

func (h *FakeProcessHandle) Wait() (int, error) {
	<-h.waitCh
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.waitErr
}

func (h *FakeProcessHandle) Close() error {
	return h.reader.Close()
}

// Emit writes lines to the process output. It blocks until they are read.
func (h *FakeProcessHandle) Emit(lines ...string) {
	for _, line := range lines {
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		io.WriteString(h.writer, line)
	}
}

// Getenv returns the value of key in the process environment
func (h *FakeProcessHandle) Getenv(key string) string {
	value := ""
	for _, kv := range h.Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			value = v
		}
	}
	return value
}

// Exit simulates the process exiting with code (unblocks Wait)
func (h *FakeProcessHandle) Exit(code int) {
	h.finish(code, nil)
}

// Fail makes Wait return err, as if supervision itself broke
func (h *FakeProcessHandle) Fail(err error) {
	h.finish(-1, err)
}

func (h *FakeProcessHandle) finish(code int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited {
		return
	}
	h.exited = true
	h.exitCode = code
	h.waitErr = err
	h.writer.Close()
	close(h.waitCh)
}

// FakeLauncher implements Launcher for testing
type FakeLauncher struct {
	// Script simulates the process. It runs in its own goroutine after
	// Start returns and must end by calling Exit or Fail. When nil the
	// process runs until the test calls Exit.
	Script func(h *FakeProcessHandle)

	mu          sync.Mutex
	nextPID     int
	handles     []*FakeProcessHandle
	startErr    error
	startCalled int
}

// NewFakeLauncher creates a new fake launcher
func NewFakeLauncher(script func(h *FakeProcessHandle)) *FakeLauncher {
	return &FakeLauncher{
		Script:  script,
		nextPID: 1000,
	}
}

// Start creates a fake process
func (l *FakeLauncher) Start(ctx context.Context, command []string, workdir string, env []string) (ProcessHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.startCalled++

	if l.startErr != nil {
		return nil, l.startErr
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	reader, writer := io.Pipe()
	handle := &FakeProcessHandle{
		pid:     l.nextPID,
		Command: append([]string{}, command...),
		Env:     append([]string{}, env...),
		reader:  reader,
		writer:  writer,
		waitCh:  make(chan struct{}),
	}
	l.nextPID++
	l.handles = append(l.handles, handle)

	go func() {
		select {
		case <-ctx.Done():
			handle.Exit(-1)
		case <-handle.waitCh:
		}
	}()
	if l.Script != nil {
		go l.Script(handle)
	}

	return handle, nil
}

// SetStartError sets an error to return on next Start call
func (l *FakeLauncher) SetStartError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.startErr = err
}

// StartCount returns number of times Start was called
func (l *FakeLauncher) StartCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startCalled
}

// LastHandle returns the most recently created handle
func (l *FakeLauncher) LastHandle() *FakeProcessHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.handles) == 0 {
		return nil
	}
	return l.handles[len(l.handles)-1]
}
