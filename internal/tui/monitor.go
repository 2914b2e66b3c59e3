package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kelsos/doc2x-cli/internal/async"
	"github.com/kelsos/doc2x-cli/internal/models"
)

// TaskView is the latest known state of one remote task.
type TaskView struct {
	Kind     models.TaskKind
	UID      string
	Status   models.TaskStatus
	Progress int
	Retries  int
	Elapsed  time.Duration
	Error    error
}

type Model struct {
	order        []string
	tasks        map[string]*TaskView
	logs         []string
	spinner      spinner.Model
	progress     progress.Model
	width        int
	height       int
	quit         bool
	done         bool
	result       error
	errorCount   int
	successCount int
	logFile      string
}

// WaitUpdate carries one lifecycle observation.
type WaitUpdate struct {
	Update async.Update
}

type LogMessage struct {
	Message string
}

// Finished marks the end of the monitored operation.
type Finished struct {
	Err error
}

func NewModel(logFile string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pr := progress.New(progress.WithDefaultGradient())

	return Model{
		tasks:    make(map[string]*TaskView),
		logs:     []string{},
		spinner:  sp,
		progress: pr,
		width:    80,
		height:   24,
		logFile:  logFile,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.handleKeyMsg(msg) {
			m.quit = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m = m.handleWindowSizeMsg(msg)

	case WaitUpdate:
		m = m.handleWaitUpdate(msg)

	case LogMessage:
		m = m.handleLogMessage(msg)

	case Finished:
		m.done = true
		m.result = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		if progressModel, ok := progressModel.(progress.Model); ok {
			m.progress = progressModel
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKeyMsg(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "q", "ctrl+c":
		return true
	}
	return false
}

func (m Model) handleWindowSizeMsg(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.progress.Width = msg.Width - 12
	return m
}

func (m Model) handleWaitUpdate(msg WaitUpdate) Model {
	u := msg.Update
	view, exists := m.tasks[u.UID]
	if !exists {
		view = &TaskView{Kind: u.Kind, UID: u.UID}
		m.tasks[u.UID] = view
		m.order = append(m.order, u.UID)
	}
	view.Elapsed = u.Elapsed

	if u.Err != nil {
		view.Retries = u.Attempt
		view.Error = u.Err
		m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("⚠️ %s poll failed (retry %d): %v", u.UID, u.Attempt, u.Err)})
		return m
	}

	previous := view.Status
	view.Status = u.Status
	view.Progress = u.Progress
	view.Error = nil

	if previous != u.Status {
		switch u.Status {
		case models.TaskStatusSuccess:
			m.successCount++
			m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("✅ %s %s finished", u.Kind, u.UID)})
		case models.TaskStatusFailed:
			m.errorCount++
			m = m.handleLogMessage(LogMessage{Message: fmt.Sprintf("❌ %s %s failed", u.Kind, u.UID)})
		}
	}
	return m
}

func (m Model) handleLogMessage(msg LogMessage) Model {
	m.logs = append(m.logs, fmt.Sprintf("[%s] %s",
		time.Now().Format("15:04:05"), msg.Message))
	if len(m.logs) > 10 {
		m.logs = m.logs[len(m.logs)-10:]
	}
	return m
}

// Tasks returns the tracked tasks in arrival order.
func (m Model) Tasks() []TaskView {
	out := make([]TaskView, 0, len(m.order))
	for _, uid := range m.order {
		out = append(out, *m.tasks[uid])
	}
	return out
}

func (m Model) View() string {
	if m.quit {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("39")).
		MarginBottom(1)

	s.WriteString(headerStyle.Render("📄 Doc2x Task Monitor"))
	s.WriteString("\n\n")

	// Summary
	summaryStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	summary := fmt.Sprintf("Tasks: %d | ✅ Success: %d | ❌ Failed: %d",
		len(m.order), m.successCount, m.errorCount)
	s.WriteString(summaryStyle.Render(summary))
	s.WriteString("\n\n")

	taskSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1).
		Width(m.width - 2)

	var taskStatus strings.Builder
	taskStatus.WriteString("📊 Tasks\n")
	taskStatus.WriteString(strings.Repeat("─", 60) + "\n")

	for _, uid := range m.order {
		task := m.tasks[uid]

		line := fmt.Sprintf("%s %-18s %-20s %s %-10s %6s",
			getStatusIcon(task.Status),
			truncate(string(task.Kind), 18),
			truncate(task.UID, 20),
			m.spinner.View(),
			statusLabel(task.Status),
			task.Elapsed.Truncate(time.Second))

		if task.Error != nil {
			errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
			line += " " + errorStyle.Render(fmt.Sprintf("retry %d: %v", task.Retries, task.Error))
		}

		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(getStatusColor(task.Status)))
		taskStatus.WriteString(statusStyle.Render(line) + "\n")

		if task.Kind == models.KindPDFParse && task.Status == models.TaskStatusProcessing {
			taskStatus.WriteString("   " + m.progress.ViewAs(float64(task.Progress)/100) + "\n")
		}
	}

	s.WriteString(taskSectionStyle.Render(taskStatus.String()))
	s.WriteString("\n\n")

	// Logs section
	logSectionStyle := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(m.width - 2).
		Height(8)

	var logSection strings.Builder
	logSection.WriteString("📝 Recent Logs\n")
	for _, log := range m.logs {
		logSection.WriteString(log + "\n")
	}

	s.WriteString(logSectionStyle.Render(logSection.String()))
	s.WriteString("\n\n")

	// Footer
	footerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	footer := "Press 'q' to quit"
	if m.logFile != "" {
		footer += " | Logs: " + m.logFile
	}
	s.WriteString(footerStyle.Render(footer))

	return s.String()
}

func statusLabel(status models.TaskStatus) string {
	if status == "" {
		return "waiting"
	}
	return string(status)
}

func getStatusIcon(status models.TaskStatus) string {
	switch status {
	case "":
		return "⏸"
	case models.TaskStatusProcessing:
		return "🔄"
	case models.TaskStatusSuccess:
		return "✅"
	case models.TaskStatusFailed:
		return "❌"
	default:
		return "❓"
	}
}

func getStatusColor(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusSuccess:
		return "82"
	case models.TaskStatusFailed:
		return "196"
	case "":
		return "244"
	default:
		return "39"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
