package runstore

import "time"

// Status is a run's lifecycle state
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions may occur
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// rank orders statuses along the lifecycle. Unknown or empty is lowest.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusRunning:
		return 2
	case StatusSucceeded, StatusFailed:
		return 3
	default:
		return 0
	}
}

// Run is the persisted status document of a run (status.json)
type Run struct {
	RunID      string     `json:"run_id"`
	Suite      string     `json:"suite,omitempty"`
	BaseURL    *string    `json:"base_url"`
	Status     Status     `json:"status,omitempty"`
	QueuedAt   *time.Time `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Message    *string    `json:"message"`
	// PID and Host of the executor driving the run, recorded when it starts running
	PID  int    `json:"pid,omitempty"`
	Host string `json:"host,omitempty"`
}

// SortTime is the time a run is ordered by: started, else queued
func (r *Run) SortTime() time.Time {
	if r.StartedAt != nil {
		return *r.StartedAt
	}
	if r.QueuedAt != nil {
		return *r.QueuedAt
	}
	return time.Time{}
}

// Summary holds the test counters of a run (summary.json)
type Summary struct {
	RunID   string `json:"run_id"`
	Total   int    `json:"total"`
	Passed  int    `json:"passed"`
	Failed  int    `json:"failed"`
	Skipped int    `json:"skipped"`
}

// FallbackSummary is reported when no test report could be parsed.
// It counts one failure so an unknown outcome never reads as success.
func FallbackSummary() Summary {
	return Summary{Failed: 1}
}

// Artifact is one downloadable file of a run
type Artifact struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	DownloadURL string `json:"download_url"`
}

// RunRecord is the rendered view of a run for listings and detail queries
type RunRecord struct {
	RunID      string     `json:"run_id"`
	Suite      string     `json:"suite"`
	BaseURL    *string    `json:"base_url"`
	Status     Status     `json:"status"`
	QueuedAt   *time.Time `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Message    *string    `json:"message"`
	Total      int        `json:"total"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Summary    *Summary   `json:"summary,omitempty"`
	Artifacts  []Artifact `json:"artifacts"`
}

// StatusOption sets one field of a status update
type StatusOption func(*Run)

// WithStatus sets the lifecycle status
func WithStatus(s Status) StatusOption {
	return func(r *Run) { r.Status = s }
}

// WithStartedAt sets started_at
func WithStartedAt(t time.Time) StatusOption {
	return func(r *Run) { r.StartedAt = timePtr(t) }
}

// WithFinishedAt sets finished_at
func WithFinishedAt(t time.Time) StatusOption {
	return func(r *Run) { r.FinishedAt = timePtr(t) }
}

// WithMessage sets the message. An empty message clears it.
func WithMessage(msg string) StatusOption {
	return func(r *Run) {
		if msg == "" {
			r.Message = nil
			return
		}
		r.Message = &msg
	}
}

// WithExecutor records the pid and host of the executor
func WithExecutor(pid int, host string) StatusOption {
	return func(r *Run) {
		r.PID = pid
		r.Host = host
	}
}

// Now returns the current time in the precision runs are stored with
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func timePtr(t time.Time) *time.Time {
	t = t.UTC().Truncate(time.Second)
	return &t
}
