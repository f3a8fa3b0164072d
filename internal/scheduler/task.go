package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending       TaskStatus = iota // Waiting for dependencies
	TaskInProgress                      // Dispatched to an agent
	TaskCompleted                       // Finished successfully (or recovered)
	TaskFailed                          // Finished with error
	TaskNeedsRevision                   // Sent back for another attempt
)

var statusNames = [...]string{
	TaskPending:       "pending",
	TaskInProgress:    "in_progress",
	TaskCompleted:     "completed",
	TaskFailed:        "failed",
	TaskNeedsRevision: "needs_revision",
}

func (s TaskStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("TaskStatus(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText renders the status as its lowercase name.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase status name.
func (s *TaskStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = TaskStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown task status %q", string(text))
}

// Terminal reports whether no further transition is expected without recovery.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Role selects the prompt template and backend model used for a task.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleDesigner Role = "designer"
	RoleCoder    Role = "coder"
	RoleContext  Role = "context"
)

// ErrUnknownRole is returned by ParseRole for names outside the closed role set.
var ErrUnknownRole = errors.New("unknown agent role")

// Roles lists every valid role in a stable order.
func Roles() []Role {
	return []Role{RolePlanner, RoleDesigner, RoleCoder, RoleContext}
}

// ParseRole maps a planner-supplied agent name onto a Role.
func ParseRole(name string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(name)))
	switch r {
	case RolePlanner, RoleDesigner, RoleCoder, RoleContext:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

// Output is the result payload produced by executing a task.
type Output map[string]any

// Content returns the textual agent response stored in the output, if any.
func (o Output) Content() string {
	if o == nil {
		return ""
	}
	s, _ := o["content"].(string)
	return s
}

// TaskSpec is a task as declared by the planner, before it enters the graph.
type TaskSpec struct {
	ID           string
	Type         string
	Description  string
	Role         Role
	Dependencies []string
	Input        map[string]any
}

// Task represents a unit of work in the graph.
type Task struct {
	ID           string
	Type         string
	Role         Role
	Status       TaskStatus
	Description  string
	Input        map[string]any // Planner specification, immutable
	Output       Output         // Populated on completion
	Dependencies []string       // Ordered set of task IDs
	ErrorMessage string         // Set only while failed
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Dependencies != nil {
		cp.Dependencies = append([]string(nil), task.Dependencies...)
	}
	if task.Input != nil {
		cp.Input = make(map[string]any, len(task.Input))
		for k, v := range task.Input {
			cp.Input[k] = v
		}
	}
	if task.Output != nil {
		cp.Output = make(Output, len(task.Output))
		for k, v := range task.Output {
			cp.Output[k] = v
		}
	}
	return &cp
}

// dedupe keeps the first occurrence of every id, preserving order.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
