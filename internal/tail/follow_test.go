package tail

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for concurrent use
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func init() {
	PollInterval = 10 * time.Millisecond
}

func TestFollow_StopsWhenFinished(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.txt")
	if err := os.WriteFile(path, []byte("line 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var finished atomic.Bool
	var out syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- Follow(context.Background(), path, 0, &out, finished.Load)
	}()

	waitFor(t, func() bool { return out.String() == "line 1\n" })

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("line 2\n")
	f.Close()
	finished.Store(true)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Follow returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop after finish")
	}

	if out.String() != "line 1\nline 2\n" {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestFollow_Offset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.txt")
	if err := os.WriteFile(path, []byte("old\nnew\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := Follow(context.Background(), path, 4, &out, func() bool { return true })
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}
	if out.String() != "new\n" {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestFollow_WaitsForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.txt")

	var finished atomic.Bool
	var out syncBuffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- Follow(context.Background(), path, 0, &out, finished.Load)
	}()

	time.Sleep(30 * time.Millisecond)
	if err := os.WriteFile(path, []byte("late\n"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return out.String() == "late\n" })
	finished.Store(true)

	if err := <-errCh; err != nil {
		t.Fatalf("Follow returned error: %v", err)
	}
}

func TestFollow_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.txt")
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- Follow(ctx, path, 0, &bytes.Buffer{}, func() bool { return false })
	}()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
