package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/juanibiapina/testrun/internal/runstore"
)

// Terminal theme colors (ANSI 0-15) so the TUI follows the user's scheme
var (
	colorBlack       = lipgloss.Color("0")
	colorRed         = lipgloss.Color("1")
	colorGreen       = lipgloss.Color("2")
	colorYellow      = lipgloss.Color("3")
	colorBlue        = lipgloss.Color("4")
	colorMagenta     = lipgloss.Color("5")
	colorCyan        = lipgloss.Color("6")
	colorWhite       = lipgloss.Color("7")
	colorBrightBlack = lipgloss.Color("8")

	primaryColor   = colorYellow
	successColor   = colorGreen
	dangerColor    = colorRed
	highlightColor = colorMagenta
	fgColor        = colorWhite

	headerStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(colorBlack).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(fgColor)

	selectionBg = colorBrightBlack

	runQueuedStyle    = lipgloss.NewStyle().Foreground(colorCyan)
	runRunningStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	runSucceededStyle = lipgloss.NewStyle().Foreground(successColor)
	runFailedStyle    = lipgloss.NewStyle().Foreground(dangerColor)

	runIDStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorBrightBlack)

	errorStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorBrightBlack)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(fgColor)
)

// statusStyle returns the style for a run status, on the selection
// background when selected
func statusStyle(status runstore.Status, selected bool) lipgloss.Style {
	var style lipgloss.Style
	switch status {
	case runstore.StatusRunning:
		style = runRunningStyle
	case runstore.StatusSucceeded:
		style = runSucceededStyle
	case runstore.StatusFailed:
		style = runFailedStyle
	default:
		style = runQueuedStyle
	}
	if selected {
		style = style.Background(selectionBg)
	}
	return style
}

// statusIcon is the one-character marker shown in the run list
func statusIcon(status runstore.Status) string {
	switch status {
	case runstore.StatusRunning:
		return "●"
	case runstore.StatusSucceeded:
		return "✓"
	case runstore.StatusFailed:
		return "✗"
	default:
		return "◌"
	}
}
