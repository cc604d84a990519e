package tui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// cursorSequenceRegex matches CSI cursor movement, erase and private mode
// sequences. Colors (SGR) are not matched.
var cursorSequenceRegex = regexp.MustCompile(
	`\x1b\[` +
		`(?:` +
		`\d*[ABCDEFGH]` +
		`|\d*;\d*[Hf]` +
		`|[suKJ]` +
		`|\d*[KJ]` +
		`|\?\d+[hl]` +
		`)`,
)

// StripCursorSequences drops the escape sequences progress bars use to
// redraw in place, keeping colors. Test runners print plenty of those.
func StripCursorSequences(s string) string {
	return cursorSequenceRegex.ReplaceAllString(s, "")
}

// FitToWidth truncates or pads s to exactly width cells, keeping colors.
func FitToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(s)
	switch {
	case w > width:
		return ansi.Truncate(s, width, "")
	case w < width:
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// FitCellContent is FitToWidth with an ellipsis on truncation.
func FitCellContent(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) > width {
		if width == 1 {
			return "…"
		}
		return ansi.Truncate(s, width-1, "") + "…"
	}
	return FitToWidth(s, width)
}

// renderPanel draws a rounded box with the title in the top border.
// content is clipped to the inner area.
func renderPanel(title, content string, width, height int, active bool) string {
	borderColor := colorBlue
	if active {
		borderColor = primaryColor
	}
	border := lipgloss.NewStyle().Foreground(borderColor)
	titleStyle := lipgloss.NewStyle().Foreground(borderColor).Bold(active)

	if width < 4 {
		width = 4
	}
	if height < 2 {
		height = 2
	}

	titleWidth := lipgloss.Width(title)
	fill := width - 3 - titleWidth
	if fill < 0 {
		title = ansi.Truncate(title, width-3, "")
		fill = 0
	}
	top := border.Render("╭─") + titleStyle.Render(title) + border.Render(strings.Repeat("─", fill)+"╮")
	bottom := border.Render("╰" + strings.Repeat("─", width-2) + "╯")
	side := border.Render("│")

	innerWidth := width - 4
	lines := strings.Split(content, "\n")
	rows := make([]string, 0, height)
	rows = append(rows, top)
	for i := 0; i < height-2; i++ {
		var line string
		if i < len(lines) {
			line = lines[i]
		}
		rows = append(rows, side+" "+FitToWidth(line, innerWidth)+" "+side)
	}
	rows = append(rows, bottom)
	return strings.Join(rows, "\n")
}

// formatRelativeTime renders t as "just now", "5 min ago", "2 hr ago"...
func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hr ago", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

// formatDuration renders d compactly: 45s, 3m12s, 1h05m
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
