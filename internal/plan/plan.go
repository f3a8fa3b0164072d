package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/goalrunner/internal/scheduler"
)

// ErrInvalidPlan marks planner output that parsed as JSON but not as a plan.
// It matches ErrExtractionFailed as well.
var ErrInvalidPlan = fmt.Errorf("%w: invalid plan", ErrExtractionFailed)

// Plan is the planner's decomposition of one objective. It is accepted
// wholesale or not at all.
type Plan struct {
	ID             string               `json:"plan_id,omitempty"`
	SessionID      string               `json:"session_id"`
	Objective      string               `json:"objective"`
	Tasks          []scheduler.TaskSpec `json:"-"`
	SuccessMetrics any                  `json:"success_metrics,omitempty"`
	Raw            json.RawMessage      `json:"-"`
}

// document is the object form emitted by the planner prompt.
type document struct {
	PlanID         string            `json:"plan_id"`
	Objective      string            `json:"objective"`
	Subtasks       []json.RawMessage `json:"subtasks"`
	SuccessMetrics any               `json:"success_metrics"`
}

// subtask covers both the object-form and the bare-array task shapes.
type subtask struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Agent        string   `json:"agent"`
	Dependencies []string `json:"dependencies"`
}

// ParsePlan extracts and validates a plan from raw planner output.
// Both an object carrying "subtasks" and a bare array of tasks are accepted.
func ParsePlan(text, objective, sessionID string) (*Plan, error) {
	raw, err := Extract(text)
	if err != nil {
		return nil, err
	}

	p := &Plan{SessionID: sessionID, Objective: objective, Raw: raw}

	var items []json.RawMessage
	switch trimmed := bytes.TrimSpace(raw); {
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
	default:
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}
		if doc.Subtasks == nil {
			return nil, fmt.Errorf("%w: object has no \"subtasks\" array", ErrInvalidPlan)
		}
		items = doc.Subtasks
		p.ID = doc.PlanID
		p.SuccessMetrics = doc.SuccessMetrics
		if p.Objective == "" {
			p.Objective = doc.Objective
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: plan has no tasks", ErrInvalidPlan)
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		spec, err := decodeSubtask(item)
		if err != nil {
			return nil, fmt.Errorf("%w: task %d: %w", ErrInvalidPlan, i, err)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("%w: duplicate task id %q", ErrInvalidPlan, spec.ID)
		}
		seen[spec.ID] = true
		p.Tasks = append(p.Tasks, spec)
	}

	return p, nil
}

func decodeSubtask(item json.RawMessage) (scheduler.TaskSpec, error) {
	var st subtask
	if err := json.Unmarshal(item, &st); err != nil {
		return scheduler.TaskSpec{}, err
	}
	var input map[string]any
	if err := json.Unmarshal(item, &input); err != nil {
		return scheduler.TaskSpec{}, err
	}

	id := strings.TrimSpace(st.ID)
	if id == "" {
		return scheduler.TaskSpec{}, errors.New("empty id")
	}

	agent := st.Agent
	if strings.TrimSpace(agent) == "" {
		agent = string(scheduler.RoleCoder)
	}
	role, err := scheduler.ParseRole(agent)
	if err != nil {
		return scheduler.TaskSpec{}, fmt.Errorf("task %q: %w", id, err)
	}
	if role == scheduler.RolePlanner {
		return scheduler.TaskSpec{}, fmt.Errorf("task %q: planner cannot be assigned a subtask", id)
	}

	description := st.Description
	if description == "" {
		description = st.Title
	}

	return scheduler.TaskSpec{
		ID:           id,
		Type:         st.Type,
		Description:  description,
		Role:         role,
		Dependencies: st.Dependencies,
		Input:        input,
	}, nil
}
