package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestStripCursorSequences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"cursor up and erase line", "\x1b[1A\x1b[2Kcollected 12 items", "collected 12 items"},
		{"preserves color codes", "\x1b[32mPASSED\x1b[0m test_login", "\x1b[32mPASSED\x1b[0m test_login"},
		{"cursor position", "\x1b[10;5Hprogress", "progress"},
		{"hide and show cursor", "\x1b[?25lspinner\x1b[?25h", "spinner"},
		{"erase to end of line", "50%\x1b[K", "50%"},
		{"plain text unchanged", "tests/test_smoke.py::test_home PASSED", "tests/test_smoke.py::test_home PASSED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCursorSequences(tt.input); got != tt.expected {
				t.Errorf("StripCursorSequences(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFitToWidth(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
	}{
		{"pads short text", "abc", 6},
		{"truncates long text", "abcdefghij", 4},
		{"exact width", "abcd", 4},
		{"colored text", "\x1b[31mfailed\x1b[0m", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitToWidth(tt.input, tt.width)
			if w := lipgloss.Width(got); w != tt.width {
				t.Errorf("FitToWidth(%q, %d) has width %d", tt.input, tt.width, w)
			}
		})
	}

	if FitToWidth("abc", 0) != "" {
		t.Error("zero width should render nothing")
	}
}

func TestFitCellContent(t *testing.T) {
	if got := FitCellContent("avp_scenario", 5); got != "avp_…" {
		t.Errorf("unexpected truncation: %q", got)
	}
	if got := FitCellContent("smoke", 7); got != "smoke  " {
		t.Errorf("unexpected padding: %q", got)
	}
	if got := FitCellContent("smoke", 1); got != "…" {
		t.Errorf("unexpected single cell: %q", got)
	}
}

func TestRenderPanel(t *testing.T) {
	out := renderPanel(" Logs ", "line 1\nline 2 is much longer than the panel", 20, 5, true)
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if w := lipgloss.Width(line); w != 20 {
			t.Errorf("line %d has width %d: %q", i, w, line)
		}
	}
	if !strings.Contains(lines[0], "Logs") {
		t.Errorf("title missing from top border: %q", lines[0])
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{45 * time.Second, "45s"},
		{3*time.Minute + 12*time.Second, "3m12s"},
		{time.Hour + 5*time.Minute, "1h05m"},
		{1400 * time.Millisecond, "1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.expected {
			t.Errorf("formatDuration(%s) = %q, expected %q", tt.d, got, tt.expected)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		t        time.Time
		expected string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5 min ago"},
		{now.Add(-3 * time.Hour), "3 hr ago"},
		{now.Add(-30 * time.Hour), "1 day ago"},
		{now.Add(-72 * time.Hour), "3 days ago"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(tt.t); got != tt.expected {
			t.Errorf("formatRelativeTime(%s) = %q, expected %q", tt.t, got, tt.expected)
		}
	}
}
