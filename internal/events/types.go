package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
	Session() string
}

// Topic constants
const (
	TopicTask    = "task"
	TopicTool    = "tool"
	TopicSession = "session"
)

// Event type constants
const (
	EventTypeTaskStarted     = "task.started"
	EventTypeTaskCompleted   = "task.completed"
	EventTypeTaskFailed      = "task.failed"
	EventTypeTaskRecovered   = "task.recovered"
	EventTypeToolCall        = "tool.call"
	EventTypeSessionState    = "session.state"
	EventTypeSessionProgress = "session.progress"
)

// TaskStartedEvent is published when a task moves to in_progress.
type TaskStartedEvent struct {
	SessionID   string
	ID          string
	Description string
	Role        string
	Timestamp   time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskID() string    { return e.ID }
func (e TaskStartedEvent) Session() string   { return e.SessionID }

// TaskCompletedEvent is published when a task's output has been stored.
type TaskCompletedEvent struct {
	SessionID string
	ID        string
	Content   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }
func (e TaskCompletedEvent) Session() string   { return e.SessionID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	SessionID string
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }
func (e TaskFailedEvent) Session() string   { return e.SessionID }

// TaskRecoveredEvent is published when a recovery policy rescues a failed task.
type TaskRecoveredEvent struct {
	SessionID string
	ID        string
	Attempts  int
	Timestamp time.Time
}

func (e TaskRecoveredEvent) EventType() string { return EventTypeTaskRecovered }
func (e TaskRecoveredEvent) TaskID() string    { return e.ID }
func (e TaskRecoveredEvent) Session() string   { return e.SessionID }

// ToolCallEvent is published after each dispatched tool call.
type ToolCallEvent struct {
	SessionID string
	ID        string
	Tool      string
	Success   bool
	Error     string
	Timestamp time.Time
}

func (e ToolCallEvent) EventType() string { return EventTypeToolCall }
func (e ToolCallEvent) TaskID() string    { return e.ID }
func (e ToolCallEvent) Session() string   { return e.SessionID }

// SessionStateEvent is published when a session changes lifecycle state.
type SessionStateEvent struct {
	SessionID string
	State     string
	Err       error
	Timestamp time.Time
}

func (e SessionStateEvent) EventType() string { return EventTypeSessionState }
func (e SessionStateEvent) TaskID() string    { return "" }
func (e SessionStateEvent) Session() string   { return e.SessionID }

// SessionProgressEvent is published whenever task counts change.
type SessionProgressEvent struct {
	SessionID string
	Total     int
	Completed int
	Running   int
	Failed    int
	Pending   int
	Overall   float64
	Timestamp time.Time
}

func (e SessionProgressEvent) EventType() string { return EventTypeSessionProgress }
func (e SessionProgressEvent) TaskID() string    { return "" }
func (e SessionProgressEvent) Session() string   { return e.SessionID }
