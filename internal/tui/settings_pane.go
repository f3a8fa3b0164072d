package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/goalrunner/internal/config"
)

// SettingsPaneModel manages the settings form overlay. Changes apply to
// the next session; the running one keeps the settings it started with.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget   string
	backendType  string
	endpoint     string
	controlModel string
	codeModel    string
	concurrency  string
	retries      string
	toolsURL     string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.saveTarget = "project"
	m.backendType = m.config.Backend.Type
	m.endpoint = m.config.Backend.Endpoint
	m.controlModel = m.config.Models.Control
	m.codeModel = m.config.Models.Code
	m.concurrency = strconv.Itoa(m.config.Scheduler.Concurrency)
	m.retries = strconv.Itoa(m.config.Scheduler.RetryAttempts)
	m.toolsURL = m.config.Tools.BaseURL
}

func nonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project (.goalrunner/config.json)", "project"),
					huh.NewOption("Global (~/.goalrunner/config.json)", "global"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("backendType").
				Title("Backend").
				Options(
					huh.NewOption("Ollama HTTP", "ollama"),
					huh.NewOption("Command line", "command"),
				).
				Value(&m.backendType),

			huh.NewInput().
				Key("endpoint").
				Title("Ollama Endpoint").
				Value(&m.endpoint).
				Placeholder("http://localhost:11434"),

			huh.NewInput().
				Key("controlModel").
				Title("Control Model").
				Description("Planner, designer and context roles").
				Value(&m.controlModel).
				Placeholder("codellama:instruct"),

			huh.NewInput().
				Key("codeModel").
				Title("Code Model").
				Description("Coder role").
				Value(&m.codeModel).
				Placeholder("deepseek-coder"),
		).Title("Models"),

		huh.NewGroup(
			huh.NewInput().
				Key("concurrency").
				Title("Concurrent Tasks").
				Value(&m.concurrency).
				Validate(nonNegativeInt),

			huh.NewInput().
				Key("retries").
				Title("Retry Attempts").
				Description("0 aborts the session on the first task failure").
				Value(&m.retries).
				Validate(nonNegativeInt),

			huh.NewInput().
				Key("toolsURL").
				Title("Tool Server").
				Value(&m.toolsURL).
				Placeholder("http://127.0.0.1:8001"),
		).Title("Scheduler"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.apply()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// apply validates the form values, copies them into the config and saves it.
func (m *SettingsPaneModel) apply() error {
	next := *m.config
	next.Backend.Type = m.backendType
	next.Backend.Endpoint = m.endpoint
	next.Models.Control = m.controlModel
	next.Models.Code = m.codeModel
	next.Scheduler.Concurrency, _ = strconv.Atoi(m.concurrency)
	next.Scheduler.RetryAttempts, _ = strconv.Atoi(m.retries)
	next.Tools.BaseURL = m.toolsURL

	if err := next.Validate(); err != nil {
		return err
	}

	target := m.projectPath
	if m.saveTarget == "global" {
		target = m.globalPath
	}
	if err := config.Save(&next, target); err != nil {
		return err
	}

	*m.config = next
	return nil
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err)) + "\n\n" + m.form.View()
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it reloads the
// fields from the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.loadFields()
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last submission was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
