package runstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/circularbuffer"
)

// LogPath returns the path of the run's log file
func (s *Store) LogPath(runID string) string {
	return filepath.Join(s.RunDir(runID), logsFile)
}

// TailLogs returns up to the last maxLines lines of the run's log. The file
// is streamed through a ring buffer so memory stays bounded by maxLines.
// A missing log yields an empty string.
func (s *Store) TailLogs(runID string, maxLines int) string {
	if maxLines < 1 {
		maxLines = 1
	}
	if !ValidRunID(runID) {
		return ""
	}

	f, err := os.Open(s.LogPath(runID))
	if err != nil {
		return ""
	}
	defer f.Close()

	window := circularbuffer.New(maxLines)
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			window.Enqueue(line)
		}
		if err != nil {
			break
		}
	}

	var b strings.Builder
	for _, v := range window.Values() {
		b.WriteString(v.(string))
	}
	return strings.ToValidUTF8(b.String(), "�")
}

// LogWriter appends to a run's log file. Each call is a single unbuffered
// write, so content is visible to readers as soon as it returns.
type LogWriter struct {
	mu   sync.Mutex
	file *os.File
}

// OpenLog opens the run's log for appending, creating it if needed
func (s *Store) OpenLog(runID string) (*LogWriter, error) {
	if !ValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	if err := os.MkdirAll(s.RunDir(runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	f, err := os.OpenFile(s.LogPath(runID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &LogWriter{file: f}, nil
}

// Write implements io.Writer
func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Write(p)
}

// WriteLine appends line, adding a trailing newline if it lacks one
func (w *LogWriter) WriteLine(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := io.WriteString(w, line)
	return err
}

// Markf appends a timestamped runner line, e.g. "[2026-01-02T15:04:05Z] Starting command: ..."
func (w *LogWriter) Markf(format string, args ...any) error {
	ts := Now().Format(time.RFC3339)
	return w.WriteLine(fmt.Sprintf("[%s] ", ts) + fmt.Sprintf(format, args...))
}

// Close closes the underlying file
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.file.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
