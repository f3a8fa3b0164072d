package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/goalrunner/internal/scheduler"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrCancelled marks a session stopped before all tasks ran.
	ErrCancelled = errors.New("session cancelled")

	// ErrTaskDispatchFailed marks a task failure no recovery policy rescued.
	ErrTaskDispatchFailed = errors.New("task dispatch failed")
)

// TaskDispatchError reports which task failed and why.
type TaskDispatchError struct {
	TaskID string
	Role   scheduler.Role
	Err    error
}

func (e *TaskDispatchError) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %v", e.TaskID, e.Role, e.Err)
}

func (e *TaskDispatchError) Unwrap() []error {
	return []error{ErrTaskDispatchFailed, e.Err}
}

// SessionError is a fatal session failure. InFlight lists the tasks that were
// dispatched in the aborted batch without completing.
type SessionError struct {
	SessionID string
	InFlight  []string
	Err       error
}

func (e *SessionError) Error() string {
	if len(e.InFlight) == 0 {
		return fmt.Sprintf("session %s failed: %v", e.SessionID, e.Err)
	}
	return fmt.Sprintf("session %s failed (in flight: %s): %v", e.SessionID, strings.Join(e.InFlight, ", "), e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
