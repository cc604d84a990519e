// Package runstore persists test runs as plain files under a root directory.
//
// Each run owns one directory named after its id:
//
//	<root>/<run_id>/status.json    lifecycle document (Run)
//	<root>/<run_id>/summary.json   test counters (Summary)
//	<root>/<run_id>/logs.txt       append-only output of the test process
//	<root>/<run_id>/junit.xml      report written by the test executable
//	<root>/<run_id>/screenshots/   and videos/, zipped after the run
//
// The files are the only shared state, so any process pointed at the same
// root (API server, detached executor, CLI) sees the same runs. JSON documents
// are replaced atomically with a temp file and a rename.
package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juanibiapina/testrun/internal/logging"
)

var (
	ErrRunExists    = errors.New("run already exists")
	ErrRunNotFound  = errors.New("run not found")
	ErrInvalidRunID = errors.New("invalid run id")
)

const (
	statusFile  = "status.json"
	summaryFile = "summary.json"
	logsFile    = "logs.txt"
	junitFile   = "junit.xml"
	reportFile  = "report.html"
	tmpSuffix   = ".tmp"

	ScreenshotsDir = "screenshots"
	VideosDir      = "videos"
)

const maxRunIDLength = 128

// Store is a file-backed run store rooted at a directory
type Store struct {
	root string
	now  func() time.Time

	// keyLocks serializes read-merge-write cycles per run within this process
	keyLocks sync.Map
}

// New creates a store rooted at root. The directory is created on first write.
func New(root string) *Store {
	return &Store{
		root: root,
		now:  Now,
	}
}

// SetClock replaces the time source used for queued_at. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Root returns the runs root directory
func (s *Store) Root() string {
	return s.root
}

// ValidRunID reports whether id is safe to use as a single path element
func ValidRunID(id string) bool {
	if id == "" || len(id) > maxRunIDLength || id[0] == '.' {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}

// RunDir returns the directory of a run
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// JUnitPath returns where the test executable writes its report
func (s *Store) JUnitPath(runID string) string {
	return filepath.Join(s.RunDir(runID), junitFile)
}

// ReportPath returns where the test executable writes its HTML report
func (s *Store) ReportPath(runID string) string {
	return filepath.Join(s.RunDir(runID), reportFile)
}

func (s *Store) statusPath(runID string) string {
	return filepath.Join(s.RunDir(runID), statusFile)
}

func (s *Store) summaryPath(runID string) string {
	return filepath.Join(s.RunDir(runID), summaryFile)
}

func (s *Store) lockRun(runID string) func() {
	v, _ := s.keyLocks.LoadOrStore(runID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Exists reports whether the run's directory exists
func (s *Store) Exists(runID string) bool {
	if !ValidRunID(runID) {
		return false
	}
	info, err := os.Stat(s.RunDir(runID))
	return err == nil && info.IsDir()
}

// CreateRun creates the run directory tree and its initial documents.
// It fails with ErrRunExists if the directory is already there.
func (s *Store) CreateRun(runID, suite, baseURL string) (*Run, error) {
	if !ValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs root: %w", err)
	}

	dir := s.RunDir(runID)
	if err := os.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
		}
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	for _, sub := range []string{ScreenshotsDir, VideosDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	logFile, err := os.OpenFile(s.LogPath(runID), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	logFile.Close()

	run := &Run{
		RunID:    runID,
		Suite:    suite,
		Status:   StatusQueued,
		QueuedAt: timePtr(s.now()),
	}
	if baseURL != "" {
		run.BaseURL = &baseURL
	}

	unlock := s.lockRun(runID)
	defer unlock()

	if err := writeJSON(s.summaryPath(runID), Summary{RunID: runID}); err != nil {
		return nil, err
	}
	if err := writeJSON(s.statusPath(runID), run); err != nil {
		return nil, err
	}

	return run, nil
}

// UpdateStatus merges the given fields into the run's status document and
// rewrites it atomically. Fields not named by an option keep their value.
//
// Lifecycle fields only move forward: a terminal status is kept, a status
// never goes back to an earlier state, and each timestamp is set once and is
// never earlier than the one before it.
func (s *Store) UpdateStatus(runID string, opts ...StatusOption) (*Run, error) {
	if !ValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	unlock := s.lockRun(runID)
	defer unlock()

	var prev Run
	exists := readJSON(s.statusPath(runID), &prev) == nil

	next := prev
	for _, opt := range opts {
		opt(&next)
	}
	next.RunID = runID
	if exists {
		next.Suite = prev.Suite
		enforceLifecycle(runID, &prev, &next)
	}

	if err := writeJSON(s.statusPath(runID), &next); err != nil {
		return nil, fmt.Errorf("failed to write status for run %s: %w", runID, err)
	}
	return &next, nil
}

func enforceLifecycle(runID string, prev, next *Run) {
	if next.Status != prev.Status {
		if prev.Status.IsTerminal() || next.Status.rank() < prev.Status.rank() {
			logging.Logger.Warn("ignoring status regression",
				"run_id", runID, "from", prev.Status, "to", next.Status)
			next.Status = prev.Status
		}
	}

	keepFirst(&next.QueuedAt, prev.QueuedAt)
	keepFirst(&next.StartedAt, prev.StartedAt)
	keepFirst(&next.FinishedAt, prev.FinishedAt)

	notBefore(next.StartedAt, next.QueuedAt)
	notBefore(next.FinishedAt, next.StartedAt)
	notBefore(next.FinishedAt, next.QueuedAt)
}

func keepFirst(dst **time.Time, prev *time.Time) {
	if prev != nil {
		*dst = prev
	}
}

func notBefore(t, floor *time.Time) {
	if t != nil && floor != nil && t.Before(*floor) {
		*t = *floor
	}
}

// WriteSummary stores the run's counters atomically
func (s *Store) WriteSummary(runID string, summary Summary) (*Summary, error) {
	if !ValidRunID(runID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}

	unlock := s.lockRun(runID)
	defer unlock()

	summary.RunID = runID
	if err := writeJSON(s.summaryPath(runID), &summary); err != nil {
		return nil, fmt.Errorf("failed to write summary for run %s: %w", runID, err)
	}
	return &summary, nil
}

// ReadStatus returns the run's status document. ok is false when the run
// does not exist or its document cannot be read.
func (s *Store) ReadStatus(runID string) (run Run, ok bool) {
	if !ValidRunID(runID) {
		return Run{}, false
	}
	if err := readJSON(s.statusPath(runID), &run); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Logger.Debug("failed to read status", "run_id", runID, "error", err)
		}
		return Run{}, false
	}
	return run, true
}

// ReadSummary returns the run's counters, zero when unreadable
func (s *Store) ReadSummary(runID string) (summary Summary, ok bool) {
	if !ValidRunID(runID) {
		return Summary{}, false
	}
	if err := readJSON(s.summaryPath(runID), &summary); err != nil {
		return Summary{RunID: runID}, false
	}
	return summary, true
}

// Record renders a run for API consumers. Missing documents degrade to
// defaults rather than failing.
func (s *Store) Record(runID string, details bool) RunRecord {
	run, _ := s.ReadStatus(runID)
	summary, _ := s.ReadSummary(runID)

	status := run.Status
	if status == "" {
		status = StatusQueued
	}

	record := RunRecord{
		RunID:      runID,
		Suite:      run.Suite,
		BaseURL:    run.BaseURL,
		Status:     status,
		QueuedAt:   run.QueuedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Message:    run.Message,
		Total:      summary.Total,
		Passed:     summary.Passed,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Artifacts:  s.Manifest(runID),
	}
	if details {
		summary.RunID = runID
		record.Summary = &summary
	}
	return record
}

// RecentRuns returns up to limit status documents, most recent first.
// It reads only status files.
func (s *Store) RecentRuns(limit int) []Run {
	if limit < 1 {
		limit = 1
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Logger.Warn("failed to read runs root", "root", s.root, "error", err)
		}
		return nil
	}

	runs := make([]Run, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !ValidRunID(entry.Name()) {
			continue
		}
		if _, err := os.Stat(s.statusPath(entry.Name())); err != nil {
			continue
		}
		run, _ := s.ReadStatus(entry.Name())
		run.RunID = entry.Name()
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		ti, tj := runs[i].SortTime(), runs[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return strings.Compare(runs[i].RunID, runs[j].RunID) > 0
	})

	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// ListRuns returns up to limit rendered runs, most recent first
func (s *Store) ListRuns(limit int) []RunRecord {
	runs := s.RecentRuns(limit)
	records := make([]RunRecord, 0, len(runs))
	for _, run := range runs {
		records = append(records, s.Record(run.RunID, false))
	}
	return records
}
