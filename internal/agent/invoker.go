package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"text/template"
	"time"

	"github.com/aristath/goalrunner/internal/backend"
	"github.com/aristath/goalrunner/internal/contextlog"
	"github.com/aristath/goalrunner/internal/plan"
	"github.com/aristath/goalrunner/internal/scheduler"
	"github.com/aristath/goalrunner/internal/toolcall"
)

const (
	// DefaultTimeout bounds a single backend call.
	DefaultTimeout = 120 * time.Second

	// messagePreview is how much of a message's content enters a prompt.
	messagePreview = 200

	// retrievedSnippets is how many context log entries a context task pulls in.
	retrievedSnippets = 5
)

// Config configures an Invoker.
type Config struct {
	Profiles  map[scheduler.Role]Profile // Defaults to DefaultProfiles(Models{})
	Timeout   time.Duration              // Per-invocation backend timeout, default 120s
	Tools     *toolcall.Dispatcher       // Runs tool calls for UsesTools profiles; nil skips them
	Retriever contextlog.Retriever       // Feeds context-role prompts; nil skips retrieval
}

// Request is everything needed to run one task.
type Request struct {
	Task         *scheduler.Task
	Dependencies []*scheduler.Task // Snapshots of the task's dependencies
	Recent       []Message
}

// Invoker renders role prompts, calls the backend and shapes task outputs.
type Invoker struct {
	backend   backend.Backend
	profiles  map[scheduler.Role]Profile
	templates map[scheduler.Role]*template.Template
	timeout   time.Duration
	tools     *toolcall.Dispatcher
	retriever contextlog.Retriever
	now       func() time.Time
}

// NewInvoker parses every profile template up front so a broken template
// fails at startup rather than mid-session.
func NewInvoker(b backend.Backend, cfg Config) (*Invoker, error) {
	if b == nil {
		return nil, fmt.Errorf("agent invoker requires a backend")
	}

	profiles := cfg.Profiles
	if profiles == nil {
		profiles = DefaultProfiles(Models{})
	}
	if _, ok := profiles[scheduler.RolePlanner]; !ok {
		return nil, fmt.Errorf("no profile for role %q", scheduler.RolePlanner)
	}

	templates := make(map[scheduler.Role]*template.Template, len(profiles))
	for role, p := range profiles {
		tmpl, err := template.New(string(role)).Option("missingkey=zero").Parse(p.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt template: %w", role, err)
		}
		templates[role] = tmpl
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Invoker{
		backend:   b,
		profiles:  profiles,
		templates: templates,
		timeout:   timeout,
		tools:     cfg.Tools,
		retriever: cfg.Retriever,
		now:       time.Now,
	}, nil
}

// Profile returns the profile for role.
func (inv *Invoker) Profile(role scheduler.Role) (Profile, bool) {
	p, ok := inv.profiles[role]
	return p, ok
}

// Plan asks the planner role to decompose objective.
func (inv *Invoker) Plan(ctx context.Context, objective, sessionID string) (*plan.Plan, error) {
	prompt, err := inv.render(scheduler.RolePlanner, promptData{Objective: objective})
	if err != nil {
		return nil, err
	}

	resp, err := inv.complete(ctx, inv.profiles[scheduler.RolePlanner].Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	p, err := plan.ParsePlan(resp.Content, objective, sessionID)
	if err != nil {
		return nil, fmt.Errorf("planner failed to create valid plan: %w", err)
	}
	return p, nil
}

// Invoke runs req.Task through its role and returns the task output.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (scheduler.Output, error) {
	task := req.Task
	profile, ok := inv.profiles[task.Role]
	if !ok {
		return nil, fmt.Errorf("no profile for role %q", task.Role)
	}

	taskContext := inv.BuildContext(req)
	if task.Role == scheduler.RoleContext {
		taskContext = inv.withRetrieved(ctx, task, taskContext)
	}

	input, err := json.MarshalIndent(task.Input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode task input: %w", err)
	}

	prompt, err := inv.render(task.Role, promptData{
		Description: task.Description,
		Type:        task.Type,
		Input:       string(input),
		Context:     taskContext,
	})
	if err != nil {
		return nil, err
	}

	resp, err := inv.complete(ctx, profile.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s agent: %w", task.Role, err)
	}

	out := scheduler.Output{
		"type":       profile.OutputType,
		"content":    resp.Content,
		"task_id":    task.ID,
		"created_at": inv.now().UTC().Format(time.RFC3339),
	}

	if task.Role == scheduler.RoleDesigner {
		title, _ := task.Input["title"].(string)
		spec, _ := plan.ParseDesign(resp.Content, title, task.Description)
		out["spec"] = map[string]any(spec)
	}

	if profile.UsesTools && inv.tools != nil {
		out["tool_results"] = inv.tools.Execute(ctx, task, toolcall.Parse(resp.Content))
	}

	return out, nil
}

// BuildContext renders the outputs of completed dependencies followed by
// the recent inter-agent messages, one entry per line.
func (inv *Invoker) BuildContext(req Request) string {
	var parts []string

	for _, dep := range req.Dependencies {
		if dep == nil || dep.Status != scheduler.TaskCompleted {
			continue
		}
		data, err := json.Marshal(dep.Output)
		if err != nil {
			data = []byte(dep.Output.Content())
		}
		parts = append(parts, fmt.Sprintf("Task %s Output: %s", dep.ID, data))
	}

	for _, msg := range req.Recent {
		parts = append(parts, fmt.Sprintf("%s to %s: %s", msg.FromRole, msg.ToRole, preview(msg.Content, messagePreview)))
	}

	return strings.Join(parts, "\n")
}

// withRetrieved appends context log snippets matching the task. Retrieval is
// best-effort.
func (inv *Invoker) withRetrieved(ctx context.Context, task *scheduler.Task, base string) string {
	if inv.retriever == nil {
		return base
	}

	snippets, err := inv.retriever.Retrieve(ctx, task.Description, retrievedSnippets)
	if err != nil {
		log.Printf("WARNING: context retrieval for task %q failed: %v", task.ID, err)
		return base
	}
	if len(snippets) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	if base != "" {
		b.WriteString("\n")
	}
	b.WriteString("Relevant history:")
	for _, s := range snippets {
		b.WriteString("\n")
		b.WriteString(s.Text)
	}
	return b.String()
}

func (inv *Invoker) complete(ctx context.Context, model, prompt string) (backend.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()
	return inv.backend.Complete(ctx, backend.Request{Model: model, Prompt: prompt})
}

type promptData struct {
	Objective   string
	Description string
	Type        string
	Input       string
	Context     string
}

func (inv *Invoker) render(role scheduler.Role, data promptData) (string, error) {
	tmpl, ok := inv.templates[role]
	if !ok {
		return "", fmt.Errorf("no prompt template for role %q", role)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", role, err)
	}
	return b.String(), nil
}

// preview truncates s to at most n characters.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
