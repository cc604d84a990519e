// Package tui implements `testrun watch`, a terminal view of recent runs
// with the selected run's details and live log.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/juanibiapina/testrun/internal/runstore"
	"github.com/juanibiapina/testrun/internal/service"
	"github.com/juanibiapina/testrun/internal/version"
)

type panel int

const (
	panelRuns panel = iota
	panelLogs
)

// listLimit is how many recent runs the run panel shows
const listLimit = 50

// refreshInterval is how often runs and logs are re-read
var refreshInterval = time.Second

type tickMsg time.Time

type refreshMsg struct {
	runs   []runstore.RunRecord
	detail *runstore.RunRecord
	logs   string
}

type actionResultMsg struct {
	message string
	isError bool
	// selectRunID moves the selection once the next refresh lists it
	selectRunID string
}

// Model is the bubbletea model for the watch view
type Model struct {
	svc *service.Service

	runs        []runstore.RunRecord
	selectedID  string
	detail      *runstore.RunRecord
	logContent  string
	list        runList
	activePanel panel

	width  int
	height int
	ready  bool

	message     string
	messageTime time.Time
	isError     bool

	showHelp   bool
	help       help.Model
	logView    viewport.Model
	followLogs bool
}

// New creates the watch model. runID preselects a run; empty selects the
// most recent one.
func New(svc *service.Service, runID string) Model {
	h := help.New()
	h.ShowAll = true

	return Model{
		svc:         svc,
		selectedID:  runID,
		activePanel: panelRuns,
		help:        h,
		followLogs:  true,
	}
}

// Run starts the TUI and blocks until the user quits
func Run(svc *service.Service, runID string) error {
	p := tea.NewProgram(New(svc, runID), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init loads the first snapshot and starts polling
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh reads the run list, the selected run and its log tail
func (m Model) refresh() tea.Cmd {
	svc := m.svc
	selected := m.selectedID
	return func() tea.Msg {
		msg := refreshMsg{runs: svc.List(listLimit)}
		if selected == "" && len(msg.runs) > 0 {
			selected = msg.runs[0].RunID
		}
		if selected == "" {
			return msg
		}
		if detail, err := svc.Get(selected); err == nil {
			msg.detail = detail
		}
		if logs, err := svc.Logs(selected, service.MaxLogLines); err == nil {
			msg.logs = logs.Logs
		}
		return msg
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tickCmd())

	case refreshMsg:
		m.applyRefresh(msg)
		return m, nil

	case actionResultMsg:
		m.message = msg.message
		m.isError = msg.isError
		m.messageTime = time.Now()
		if msg.selectRunID != "" {
			m.selectedID = msg.selectRunID
			m.followLogs = true
			return m, m.refresh()
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m *Model) resize() {
	listWidth := m.listWidth()
	bodyHeight := max(m.height-2, 8)

	m.list.rows = max(bodyHeight-2, 1)
	m.list.reveal()

	logWidth := max(m.width-listWidth-4, 10)
	logHeight := max(bodyHeight-detailHeight-2, 1)
	m.logView = viewport.New(logWidth, logHeight)
	m.logView.SetContent(m.formatLogs())
	if m.followLogs {
		m.logView.GotoBottom()
	}
}

func (m *Model) applyRefresh(msg refreshMsg) {
	m.runs = msg.runs

	if m.selectedID == "" && len(m.runs) > 0 {
		m.selectedID = m.runs[0].RunID
	}
	for i, run := range m.runs {
		if run.RunID == m.selectedID {
			m.list.selectIndex(i, len(m.runs))
			break
		}
	}

	if msg.detail != nil && msg.detail.RunID == m.selectedID {
		m.detail = msg.detail
		if msg.logs != m.logContent {
			m.logContent = msg.logs
			m.logView.SetContent(m.formatLogs())
		}
		if m.followLogs {
			m.logView.GotoBottom()
		}
	}
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, keys.Tab):
		if m.activePanel == panelRuns {
			m.activePanel = panelLogs
		} else {
			m.activePanel = panelRuns
		}
		return m, nil

	case key.Matches(msg, keys.Follow):
		m.followLogs = !m.followLogs
		if m.followLogs {
			m.logView.GotoBottom()
		}
		return m, nil

	case key.Matches(msg, keys.Copy):
		return m, m.copyRunID()

	case key.Matches(msg, keys.Rerun):
		return m, m.rerun()
	}

	if m.activePanel == panelLogs {
		return m.updateLogsPanel(msg)
	}
	return m.updateRunsPanel(msg)
}

func (m Model) updateRunsPanel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	moved := false
	switch {
	case key.Matches(msg, keys.Up):
		moved = m.list.up()
	case key.Matches(msg, keys.Down):
		moved = m.list.down(len(m.runs))
	case key.Matches(msg, keys.Top):
		m.list.first()
		moved = true
	case key.Matches(msg, keys.Bottom):
		m.list.last(len(m.runs))
		moved = true
	}

	if !moved || len(m.runs) == 0 {
		return m, nil
	}
	id := m.runs[m.list.cursor].RunID
	if id == m.selectedID {
		return m, nil
	}
	m.selectedID = id
	m.detail = nil
	m.logContent = ""
	m.logView.SetContent("")
	m.followLogs = true
	return m, m.refresh()
}

func (m Model) updateLogsPanel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.logView.LineUp(1)
		m.followLogs = false
	case "down", "j":
		m.logView.LineDown(1)
		m.followLogs = m.logView.AtBottom()
	case "pgup", "ctrl+u":
		m.logView.HalfViewUp()
		m.followLogs = false
	case "pgdown", "ctrl+d":
		m.logView.HalfViewDown()
		m.followLogs = m.logView.AtBottom()
	case "g", "home":
		m.logView.GotoTop()
		m.followLogs = false
	case "G", "end":
		m.logView.GotoBottom()
		m.followLogs = true
	}
	return m, nil
}

// Actions

func (m Model) copyRunID() tea.Cmd {
	runID := m.selectedID
	return func() tea.Msg {
		if runID == "" {
			return actionResultMsg{message: "No run selected", isError: true}
		}
		if err := clipboard.WriteAll(runID); err != nil {
			return actionResultMsg{message: fmt.Sprintf("Failed to copy: %v", err), isError: true}
		}
		return actionResultMsg{message: "Run ID copied to clipboard"}
	}
}

// rerun starts a new run with the selected run's suite and base URL
func (m Model) rerun() tea.Cmd {
	svc := m.svc
	detail := m.detail
	return func() tea.Msg {
		if detail == nil {
			return actionResultMsg{message: "No run selected", isError: true}
		}
		baseURL := ""
		if detail.BaseURL != nil {
			baseURL = *detail.BaseURL
		}
		result, err := svc.Start(context.Background(), detail.Suite, baseURL)
		if err != nil {
			return actionResultMsg{message: err.Error(), isError: true}
		}
		return actionResultMsg{
			message:     fmt.Sprintf("Started run %s", result.RunID),
			selectRunID: result.RunID,
		}
	}
}

// View

// detailHeight is the height of the run detail panel including borders
const detailHeight = 8

func (m Model) listWidth() int {
	return max(min(m.width*35/100, 48), 24)
}

// View renders the screen
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := headerStyle.Render("testrun " + version.Version)
	header = FitToWidth(header, m.width)

	bodyHeight := max(m.height-2, 8)
	listWidth := m.listWidth()
	rightWidth := max(m.width-listWidth, 20)

	left := renderPanel(" Runs ", m.renderRunList(listWidth-4), listWidth, bodyHeight, m.activePanel == panelRuns)

	logTitle := " Logs "
	if m.followLogs {
		logTitle = " Logs (following) "
	}
	right := lipgloss.JoinVertical(lipgloss.Left,
		renderPanel(" Run ", m.renderDetail(rightWidth-4), rightWidth, detailHeight, false),
		renderPanel(logTitle, m.logView.View(), rightWidth, bodyHeight-detailHeight, m.activePanel == panelLogs),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	if m.showHelp {
		body = renderPanel(" Help ", m.help.View(keys), m.width, bodyHeight, true)
	}

	return header + "\n" + body + "\n" + m.renderStatusBar()
}

func (m Model) renderRunList(width int) string {
	if len(m.runs) == 0 {
		return mutedStyle.Render("No runs yet")
	}

	start, end := m.list.visible(len(m.runs))
	var lines []string
	for i := start; i < end; i++ {
		lines = append(lines, m.formatRunLine(m.runs[i], i == m.list.cursor, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatRunLine(run runstore.RunRecord, selected bool, width int) string {
	status := statusStyle(run.Status, selected).Render(statusIcon(run.Status))

	idStyle := runIDStyle
	textStyle := lipgloss.NewStyle()
	if selected {
		idStyle = idStyle.Background(selectionBg)
		textStyle = textStyle.Background(selectionBg)
	}

	id := run.RunID
	if len(id) > 8 {
		id = id[:8]
	}

	when := ""
	if t := sortTime(run); !t.IsZero() {
		when = formatRelativeTime(t)
	}

	// icon, space, 8 char id, space
	suiteWidth := max(width-11-len(when)-1, 1)
	line := status + textStyle.Render(" ") + idStyle.Render(FitToWidth(id, 8)) + textStyle.Render(" ") +
		textStyle.Render(FitCellContent(run.Suite, suiteWidth)+" ") + textStyle.Render(when)
	if selected {
		return lipgloss.NewStyle().Background(selectionBg).Render(FitToWidth(line, width))
	}
	return line
}

func sortTime(run runstore.RunRecord) time.Time {
	if run.StartedAt != nil {
		return *run.StartedAt
	}
	if run.QueuedAt != nil {
		return *run.QueuedAt
	}
	return time.Time{}
}

func (m Model) renderDetail(width int) string {
	d := m.detail
	if d == nil {
		return mutedStyle.Render("No run selected")
	}

	label := func(s string) string { return labelStyle.Render(FitToWidth(s, 9)) }

	baseURL := "(default)"
	if d.BaseURL != nil {
		baseURL = *d.BaseURL
	}

	timing := "-"
	switch {
	case d.StartedAt != nil && d.FinishedAt != nil:
		timing = formatDuration(d.FinishedAt.Sub(*d.StartedAt))
	case d.StartedAt != nil:
		timing = formatDuration(time.Since(*d.StartedAt)) + " so far"
	case d.QueuedAt != nil:
		timing = "queued " + formatRelativeTime(*d.QueuedAt)
	}

	message := ""
	if d.Message != nil {
		message = *d.Message
	}

	lines := []string{
		label("Run") + runIDStyle.Render(d.RunID),
		label("Status") + statusStyle(d.Status, false).Render(string(d.Status)) + "  " + mutedStyle.Render(timing),
		label("Suite") + d.Suite + "  " + mutedStyle.Render(baseURL),
		label("Tests") + fmt.Sprintf("%d total, %s, %s, %d skipped",
			d.Total,
			runSucceededStyle.Render(fmt.Sprintf("%d passed", d.Passed)),
			runFailedStyle.Render(fmt.Sprintf("%d failed", d.Failed)),
			d.Skipped),
		label("Message") + message,
		label("Files") + fmt.Sprintf("%d artifacts", len(d.Artifacts)),
	}
	for i, line := range lines {
		lines[i] = FitCellContent(line, width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatLogs() string {
	if m.logContent == "" {
		return mutedStyle.Render("No output yet")
	}
	lines := strings.Split(strings.TrimRight(m.logContent, "\n"), "\n")
	for i, line := range lines {
		lines[i] = StripCursorSequences(line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatusBar() string {
	var content string

	if m.message != "" && time.Since(m.messageTime) < 3*time.Second {
		styled := successStyle.Render(m.message)
		if m.isError {
			styled = errorStyle.Render(m.message)
		}
		content = " " + styled
	} else {
		parts := []string{m.renderKey("↑↓", "navigate")}
		if m.activePanel == panelLogs {
			parts = append(parts, m.renderKey("g/G", "top/bottom"), m.renderKey("f", "follow"))
		}
		parts = append(parts,
			m.renderKey("tab", "panel"),
			m.renderKey("y", "copy id"),
			m.renderKey("r", "rerun"),
			m.renderKey("?", "help"),
			m.renderKey("q", "quit"),
		)
		content = " " + strings.Join(parts, " ")
	}

	return statusBarStyle.Render(FitToWidth(content, m.width))
}

func (m Model) renderKey(key, desc string) string {
	return helpKeyStyle.Render(key) + " " + helpDescStyle.Render(desc)
}
