// Package service is the entry point for starting runs and querying their
// state, logs and artifacts. Every failure is returned as *Error.
package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/juanibiapina/testrun/internal/config"
	"github.com/juanibiapina/testrun/internal/executor"
	"github.com/juanibiapina/testrun/internal/guard"
	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/metrics"
	"github.com/juanibiapina/testrun/internal/runstore"
)

// Listing and log tail bounds
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
	MaxLogLines      = 2000
)

// Service coordinates admission, persistence and execution of runs
type Service struct {
	cfg        config.Config
	store      *runstore.Store
	guard      *guard.Guard
	executor   *executor.Executor
	dispatcher Dispatcher
	newID      func() string
}

// Option configures a Service
type Option func(*Service)

// WithDispatcher replaces the default process dispatcher
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

// WithIDGenerator replaces the uuid run id generator
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// New creates a service. Runs are dispatched to detached processes unless
// an option says otherwise.
func New(cfg config.Config, store *runstore.Store, g *guard.Guard, exec *executor.Executor, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		store:      store,
		guard:      g,
		executor:   exec,
		dispatcher: &ProcessDispatcher{},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the run store
func (s *Service) Store() *runstore.Store {
	return s.store
}

// Guard returns the active-run guard
func (s *Service) Guard() *guard.Guard {
	return s.guard
}

// StartResult is returned when a run has been accepted
type StartResult struct {
	RunID  string          `json:"run_id"`
	Status runstore.Status `json:"status"`
}

// Start validates the request, admits the run, persists it as queued and
// hands it to the dispatcher. It returns before the run executes.
func (s *Service) Start(ctx context.Context, suite, baseURL string) (*StartResult, error) {
	suite = strings.TrimSpace(suite)
	baseURL = strings.TrimSpace(baseURL)
	if suite == "" {
		return nil, newError(KindValidation, "suite is required", nil)
	}
	if !s.cfg.SupportsSuite(suite) {
		return nil, newError(KindValidation, fmt.Sprintf("Unsupported suite '%s'. Supported suites: %s",
			suite, strings.Join(s.cfg.SortedSuites(), ", ")), nil)
	}

	runID := s.newID()
	if err := s.guard.Acquire(ctx, runID); err != nil {
		var active *guard.ActiveRunError
		if errors.As(err, &active) {
			metrics.RecordConflict()
			return nil, &Error{
				Kind:         KindConflict,
				Message:      "A test run is already active",
				ActiveRunID:  active.RunID,
				ActiveStatus: active.Status,
				Err:          err,
			}
		}
		metrics.RecordError("admission")
		return nil, newError(KindInternal, err.Error(), err)
	}

	run, err := s.store.CreateRun(runID, suite, baseURL)
	if err != nil {
		s.guard.Release(ctx, runID)
		metrics.RecordError("create_run")
		return nil, newError(KindInternal, fmt.Sprintf("failed to create run: %v", err), err)
	}

	if err := s.dispatcher.Dispatch(runID); err != nil {
		message := fmt.Sprintf("Failed to start run: %v", err)
		if _, uerr := s.store.UpdateStatus(runID,
			runstore.WithStatus(runstore.StatusFailed),
			runstore.WithFinishedAt(runstore.Now()),
			runstore.WithMessage(message),
		); uerr != nil {
			logging.Logger.Error("failed to mark undispatched run", "run_id", runID, "error", uerr)
		}
		s.guard.Release(ctx, runID)
		metrics.RecordError("dispatch")
		return nil, newError(KindExecutorCrash, message, err)
	}

	metrics.RecordRunStarted(suite)
	logging.Logger.Info("run accepted", "run_id", runID, "suite", suite)

	return &StartResult{RunID: run.RunID, Status: run.Status}, nil
}

// Execute drives an accepted run to completion in the calling goroutine.
// It is what dispatchers invoke. The run always ends terminal and the
// active-run lock is released.
func (s *Service) Execute(ctx context.Context, runID string) (*executor.Result, error) {
	run, ok := s.store.ReadStatus(runID)
	if !ok {
		return nil, newError(KindNotFound, fmt.Sprintf("Run %s does not exist", runID), runstore.ErrRunNotFound)
	}
	defer s.guard.Release(context.WithoutCancel(ctx), runID)

	if run.Status.IsTerminal() {
		return nil, newError(KindValidation, fmt.Sprintf("Run %s has already finished", runID), nil)
	}

	baseURL := ""
	if run.BaseURL != nil {
		baseURL = *run.BaseURL
	}

	result, err := s.executor.Execute(ctx, runID, run.Suite, baseURL)
	if err == nil {
		return result, nil
	}

	message := fmt.Sprintf("Runner crashed: %v", err)
	if result == nil || !result.Status.IsTerminal() {
		if _, uerr := s.store.UpdateStatus(runID,
			runstore.WithStatus(runstore.StatusFailed),
			runstore.WithFinishedAt(runstore.Now()),
			runstore.WithMessage(message),
		); uerr != nil {
			logging.Logger.Error("failed to mark crashed run", "run_id", runID, "error", uerr)
		}
	}
	metrics.RecordError("executor")
	return result, newError(KindExecutorCrash, message, err)
}

// Get returns the full record of a run, including summary and artifacts
func (s *Service) Get(runID string) (*runstore.RunRecord, error) {
	if err := s.requireRun(runID); err != nil {
		return nil, err
	}
	record := s.store.Record(runID, true)
	return &record, nil
}

// List returns the most recent runs, newest first. limit is clamped to
// 1..MaxListLimit; zero means DefaultListLimit.
func (s *Service) List(limit int) []runstore.RunRecord {
	if limit == 0 {
		limit = DefaultListLimit
	}
	return s.store.ListRuns(clamp(limit, 1, MaxListLimit))
}

// LogsResult is the tail of a run's log
type LogsResult struct {
	RunID string `json:"run_id"`
	Logs  string `json:"logs"`
}

// Logs returns up to lines trailing lines of a run's log. lines is clamped
// to 1..MaxLogLines; zero means the configured default.
func (s *Service) Logs(runID string, lines int) (*LogsResult, error) {
	if err := s.requireRun(runID); err != nil {
		return nil, err
	}
	if lines == 0 {
		lines = s.cfg.LogTailLines
	}
	return &LogsResult{
		RunID: runID,
		Logs:  s.store.TailLogs(runID, clamp(lines, 1, MaxLogLines)),
	}, nil
}

// Await polls a run until it is terminal and returns its full record.
// It returns the context error when ctx ends first.
func (s *Service) Await(ctx context.Context, runID string, poll time.Duration) (*runstore.RunRecord, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		record, err := s.Get(runID)
		if err != nil {
			return nil, err
		}
		if record.Status.IsTerminal() {
			return record, nil
		}

		select {
		case <-ctx.Done():
			return record, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ArtifactFile is a resolved artifact ready to be served
type ArtifactFile struct {
	Path        string
	Name        string
	ContentType string
}

// Artifact resolves relPath inside a run's directory
func (s *Service) Artifact(runID, relPath string) (*ArtifactFile, error) {
	resolved, err := s.store.ResolveArtifact(runID, relPath)
	if err != nil {
		switch {
		case errors.Is(err, runstore.ErrInvalidPath), errors.Is(err, runstore.ErrInvalidRunID):
			metrics.RecordArtifactRejection("invalid_path")
			return nil, newError(KindInvalidPath, err.Error(), err)
		case errors.Is(err, runstore.ErrRunNotFound):
			return nil, newError(KindNotFound, fmt.Sprintf("Run %s does not exist", runID), err)
		case errors.Is(err, runstore.ErrArtifactNotFound):
			metrics.RecordArtifactRejection("not_found")
			return nil, newError(KindNotFound, fmt.Sprintf("Artifact %s does not exist", relPath), err)
		default:
			return nil, newError(KindInternal, err.Error(), err)
		}
	}

	name := path.Base(strings.ReplaceAll(relPath, "\\", "/"))
	return &ArtifactFile{
		Path:        resolved,
		Name:        name,
		ContentType: runstore.ContentType(name),
	}, nil
}

func (s *Service) requireRun(runID string) error {
	if !runstore.ValidRunID(runID) {
		return newError(KindNotFound, fmt.Sprintf("Run %s does not exist", runID), runstore.ErrInvalidRunID)
	}
	if _, ok := s.store.ReadStatus(runID); !ok {
		return newError(KindNotFound, fmt.Sprintf("Run %s does not exist", runID), runstore.ErrRunNotFound)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
