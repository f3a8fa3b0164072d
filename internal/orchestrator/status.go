package orchestrator

import (
	"time"

	"github.com/aristath/goalrunner/internal/scheduler"
)

// TaskState is one task row of a status snapshot.
type TaskState struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Role        scheduler.Role       `json:"role"`
	Status      scheduler.TaskStatus `json:"status"`
	Progress    float64              `json:"progress"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Error       string               `json:"error,omitempty"`
}

// Status is a consistent snapshot of a session.
type Status struct {
	SessionID       string      `json:"session_id"`
	Objective       string      `json:"objective"`
	State           State       `json:"state"`
	Error           string      `json:"error,omitempty"`
	Tasks           []TaskState `json:"tasks"`
	OverallProgress float64     `json:"overall_progress"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TaskProgress maps a task status to a completion percentage.
func TaskProgress(status scheduler.TaskStatus) float64 {
	switch status {
	case scheduler.TaskCompleted:
		return 100
	case scheduler.TaskInProgress:
		return 50
	default:
		return 0
	}
}

// Status snapshots the session. Safe to call while the session executes.
func (s *Session) Status() Status {
	s.mu.RLock()
	st := Status{
		SessionID: s.ID,
		Objective: s.Objective,
		State:     s.state,
		UpdatedAt: s.updatedAt,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	graph := s.graph
	s.mu.RUnlock()

	tasks := graph.Tasks()
	st.Tasks = make([]TaskState, 0, len(tasks))

	var total float64
	for _, t := range tasks {
		progress := TaskProgress(t.Status)
		total += progress
		st.Tasks = append(st.Tasks, TaskState{
			ID:          t.ID,
			Description: t.Description,
			Role:        t.Role,
			Status:      t.Status,
			Progress:    progress,
			UpdatedAt:   t.UpdatedAt,
			Error:       t.ErrorMessage,
		})
		if t.UpdatedAt.After(st.UpdatedAt) {
			st.UpdatedAt = t.UpdatedAt
		}
	}

	if len(tasks) > 0 {
		st.OverallProgress = total / float64(len(tasks))
	}
	return st
}
