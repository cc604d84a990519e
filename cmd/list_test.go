package cmd

import (
	"testing"
	"time"

	"github.com/juanibiapina/testrun/internal/runstore"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{4*time.Minute + 12*time.Second, "4m12s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-90 * time.Second), "1 min ago"},
		{now.Add(-5 * time.Minute), "5 mins ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-50 * time.Hour), "2 days ago"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(tt.at); got != tt.want {
			t.Errorf("formatRelativeTime(%s ago) = %q, want %q", now.Sub(tt.at), got, tt.want)
		}
	}
}

func TestRunDuration(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(4*time.Minute + 12*time.Second)

	tests := []struct {
		name string
		run  runstore.RunRecord
		want string
	}{
		{"finished", runstore.RunRecord{Status: runstore.StatusFailed, StartedAt: &started, FinishedAt: &finished}, "4m12s"},
		{"running", runstore.RunRecord{Status: runstore.StatusRunning, StartedAt: &started}, "running"},
		{"queued", runstore.RunRecord{Status: runstore.StatusQueued, QueuedAt: &started}, "queued"},
		{"failed before start", runstore.RunRecord{Status: runstore.StatusFailed, FinishedAt: &finished}, "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runDuration(tt.run); got != tt.want {
				t.Errorf("runDuration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordSortTime(t *testing.T) {
	queued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	started := queued.Add(time.Second)

	if got := recordSortTime(runstore.RunRecord{QueuedAt: &queued}); !got.Equal(queued) {
		t.Errorf("expected queued time, got %s", got)
	}
	if got := recordSortTime(runstore.RunRecord{QueuedAt: &queued, StartedAt: &started}); !got.Equal(started) {
		t.Errorf("expected started time, got %s", got)
	}
	if got := recordSortTime(runstore.RunRecord{}); !got.IsZero() {
		t.Errorf("expected zero time, got %s", got)
	}
}
