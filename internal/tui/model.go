package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/goalrunner/internal/config"
	"github.com/aristath/goalrunner/internal/events"
	"github.com/aristath/goalrunner/internal/orchestrator"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	paneCount
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane          TaskPaneModel
	progressPane      ProgressPaneModel
	settingsPane      SettingsPaneModel
	session           *orchestrator.Session
	focusedPane       PaneID
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	showSettings      bool
	config            *config.Config
	globalConfigPath  string
	projectConfigPath string
}

// New creates a TUI model following one session. It subscribes to every
// event on the bus and drops those of other sessions.
func New(eventBus *events.EventBus, session *orchestrator.Session, cfg *config.Config, globalPath, projectPath string) Model {
	m := Model{
		taskPane:          NewTaskPaneModel(),
		progressPane:      NewProgressPaneModel(),
		settingsPane:      NewSettingsPaneModel(cfg, globalPath, projectPath),
		session:           session,
		focusedPane:       PaneTasks,
		eventSub:          eventBus.SubscribeAll(256),
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyCancel:
			if m.session != nil {
				m.session.Cancel()
			}

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case tickMsg:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		if m.session == nil || msg.Session() == m.session.ID {
			cmds = append(cmds, m.route(msg))
		}
		cmds = append(cmds, waitForEvent(m.eventSub))

	default:
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// route forwards an event to the pane that displays it.
func (m *Model) route(ev events.Event) tea.Cmd {
	var cmd tea.Cmd
	switch ev.(type) {
	case events.SessionProgressEvent, events.SessionStateEvent:
		m.progressPane, cmd = m.progressPane.Update(ev)
	default:
		m.taskPane, cmd = m.taskPane.Update(ev)
	}
	return cmd
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	header := ""
	if m.session != nil {
		header = StyleObjective.Render(truncate(m.session.Objective, m.width-2))
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, header, main, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	available := m.height - 2 // header and help bar
	progressWidth := min(max(m.width*30/100, 30), m.width)

	m.taskPane.SetSize(m.width-progressWidth, available)
	m.progressPane.SetSize(progressWidth, available)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
