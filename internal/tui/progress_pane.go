package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/goalrunner/internal/events"
)

// ProgressPaneModel shows task counts and the session state.
type ProgressPaneModel struct {
	total     int
	completed int
	running   int
	failed    int
	pending   int
	overall   float64
	state     string
	err       error
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a progress pane in the planning state.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{state: "planning"}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.SessionProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.running = msg.Running
		m.failed = msg.Failed
		m.pending = msg.Pending
		m.overall = msg.Overall

	case events.SessionStateEvent:
		m.state = msg.State
		m.err = msg.Err
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Session:   %s\n", m.stateStyle().Render(m.state))
	fmt.Fprintf(&b, "Total:     %d\n", m.total)
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprint(m.completed)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprint(m.running)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprint(m.failed)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprint(m.pending)))
	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-14, 40)
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		runningWidth := (m.running * barWidth) / m.total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		fmt.Fprintf(&b, "[%s] %5.1f%%\n", bar, m.overall)
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(StyleStatusFailed.Render(m.err.Error()))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(b.String())
}

func (m ProgressPaneModel) stateStyle() lipgloss.Style {
	switch m.state {
	case "completed":
		return StyleStatusComplete
	case "failed", "cancelled":
		return StyleStatusFailed
	case "running":
		return StyleStatusRunning
	default:
		return StyleStatusPending
	}
}

// State returns the last session state seen.
func (m ProgressPaneModel) State() string {
	return m.state
}

// Overall returns the last overall progress percentage seen.
func (m ProgressPaneModel) Overall() float64 {
	return m.overall
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
