package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/goalrunner/internal/agent"
	"github.com/aristath/goalrunner/internal/plan"
	"github.com/aristath/goalrunner/internal/scheduler"
)

// State is the lifecycle state of a session.
type State string

const (
	StatePlanning  State = "planning"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the session has finished.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Session is one objective being worked on. It exclusively owns its plan,
// graph and message log; outside callers read snapshots.
type Session struct {
	ID        string
	Objective string
	CreatedAt time.Time

	mu        sync.RWMutex
	state     State
	plan      *plan.Plan
	graph     *scheduler.Graph
	messages  *agent.MessageLog
	err       error
	updatedAt time.Time
	done      chan struct{}

	cancelled atomic.Bool
}

// NewSession creates a session in the planning state with an empty graph.
func NewSession(id, objective string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Objective: objective,
		CreatedAt: now,
		state:     StatePlanning,
		graph:     scheduler.NewGraph(),
		messages:  agent.NewMessageLog(),
		updatedAt: now,
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Plan returns the accepted plan, or nil while planning.
func (s *Session) Plan() *plan.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// Graph returns the task graph.
func (s *Session) Graph() *scheduler.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Messages returns the inter-agent message log.
func (s *Session) Messages() *agent.MessageLog {
	return s.messages
}

// Cancel asks the scheduler loop to stop before its next batch.
// Tasks already dispatched run to completion.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) attach(p *plan.Plan, g *scheduler.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = p
	s.graph = g
	s.updatedAt = time.Now()
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return
	}
	s.state = state
	s.err = err
	s.updatedAt = time.Now()
	if state.Terminal() {
		close(s.done)
	}
}
