package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/goalrunner/internal/events"
)

const listWidth = 28

// TaskView is what the task pane knows about one task.
type TaskView struct {
	TaskID      string
	Description string
	Role        string
	Status      string // "running", "completed", "failed", "recovered"
	Output      []string
	StartTime   time.Time
	Duration    time.Duration
	Attempts    int
}

// TaskPaneModel shows the task list next to a scrollable output viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskView
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskView),
		viewport: viewport.New(0, 0),
	}
}

// tickMsg debounces viewport refreshes.
type tickMsg struct {
	tag int
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.refresh()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.refresh()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		t, exists := m.tasks[msg.ID]
		if !exists {
			t = &TaskView{TaskID: msg.ID, Description: msg.Description, Role: msg.Role}
			m.tasks[msg.ID] = t
			m.order = append(m.order, msg.ID)
		} else {
			t.Output = append(t.Output, "", "[Retrying]")
		}
		t.Status = "running"
		t.StartTime = msg.Timestamp
		t.Attempts++
		if len(m.order) == 1 || m.selected() == msg.ID {
			m.refresh()
		}

	case events.ToolCallEvent:
		if t, ok := m.tasks[msg.ID]; ok {
			line := StyleStatusComplete.Render("→") + " " + msg.Tool
			if !msg.Success {
				line = StyleStatusFailed.Render("✗") + " " + msg.Tool + ": " + msg.Error
			}
			t.Output = append(t.Output, line)
			cmd = m.debounce(msg.ID)
		}

	case events.TaskCompletedEvent:
		if t, ok := m.tasks[msg.ID]; ok {
			t.Status = "completed"
			t.Duration = msg.Duration
			t.Output = append(t.Output, strings.Split(msg.Content, "\n")...)
			t.Output = append(t.Output, fmt.Sprintf("\n[Completed in %v]", msg.Duration.Round(time.Millisecond)))
			if m.selected() == msg.ID {
				m.refresh()
			}
		}

	case events.TaskFailedEvent:
		if t, ok := m.tasks[msg.ID]; ok {
			t.Status = "failed"
			t.Duration = msg.Duration
			t.Output = append(t.Output, fmt.Sprintf("\n[Failed: %v]", msg.Err))
			if m.selected() == msg.ID {
				m.refresh()
			}
		}

	case events.TaskRecoveredEvent:
		if t, ok := m.tasks[msg.ID]; ok {
			t.Status = "recovered"
			t.Output = append(t.Output, fmt.Sprintf("[Recovered after %d attempts]", msg.Attempts))
			if m.selected() == msg.ID {
				m.refresh()
			}
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.refresh()
		}
	}

	return m, cmd
}

func (m *TaskPaneModel) debounce(taskID string) tea.Cmd {
	if m.selected() != taskID {
		return nil
	}
	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(),
		lipgloss.NewStyle().
			Width(m.width-listWidth-4).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.Width(m.width - 2).Height(m.height - 2).Render(content)
}

func (m TaskPaneModel) renderList() string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(listWidth, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Planning..."))
	}
	for i, id := range m.order {
		t := m.tasks[id]
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), truncate(id+" "+t.Role, listWidth-3))
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().Width(listWidth).Height(m.height - 2).Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "completed", "recovered":
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Task returns a copy of the view of one task.
func (m TaskPaneModel) Task(id string) (TaskView, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskView{}, false
	}
	out := *t
	out.Output = append([]string(nil), t.Output...)
	return out, true
}

// Len returns the number of tasks seen so far.
func (m TaskPaneModel) Len() int {
	return len(m.order)
}

func (m TaskPaneModel) selected() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

// refresh loads the selected task's output into the viewport.
func (m *TaskPaneModel) refresh() {
	t, ok := m.tasks[m.selected()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := StyleTitle.Render(t.TaskID) + " " + t.Description
	m.viewport.SetContent(header + "\n\n" + strings.Join(t.Output, "\n"))
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
