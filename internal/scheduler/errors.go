package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDependency marks a task referencing an id absent from its plan.
	ErrInvalidDependency = errors.New("invalid dependency")

	// ErrExecutionStuck marks a graph with pending tasks and nothing ready.
	ErrExecutionStuck = errors.New("execution stuck")

	// ErrInvalidTransition marks a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDependencyNotMet marks an attempt to start a task before its dependencies completed.
	ErrDependencyNotMet = errors.New("dependency not completed")

	// ErrTaskNotFound is returned for ids unknown to the graph.
	ErrTaskNotFound = errors.New("task not found")
)

// InvalidDependencyError reports the offending task and missing dependency.
type InvalidDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *InvalidDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on non-existent task %q", e.TaskID, e.DependencyID)
}

func (e *InvalidDependencyError) Unwrap() error { return ErrInvalidDependency }

// Stuck causes.
const (
	StuckCycle         = "dependency cycle"
	StuckUnsatisfiable = "unsatisfiable dependency"
)

// StuckError reports the pending tasks that can never become ready.
type StuckError struct {
	TaskIDs []string
	Reason  string
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("execution stuck (%s) - unable to proceed with tasks: %s", e.Reason, strings.Join(e.TaskIDs, ", "))
}

func (e *StuckError) Unwrap() error { return ErrExecutionStuck }
