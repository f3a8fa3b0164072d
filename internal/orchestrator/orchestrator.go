package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aristath/goalrunner/internal/contextlog"
	"github.com/aristath/goalrunner/internal/events"
	"github.com/aristath/goalrunner/internal/plan"
	"github.com/aristath/goalrunner/internal/scheduler"
)

// Planner decomposes an objective. *agent.Invoker is the production implementation.
type Planner interface {
	Plan(ctx context.Context, objective, sessionID string) (*plan.Plan, error)
}

// Summary is the final report of a session.
type Summary struct {
	SessionID      string                      `json:"session_id"`
	Objective      string                      `json:"objective"`
	Status         State                       `json:"status"`
	Error          string                      `json:"error,omitempty"`
	Plan           *plan.Plan                  `json:"plan,omitempty"`
	Results        map[string]scheduler.Output `json:"results"`
	TasksCompleted int                         `json:"tasks_completed"`
	TasksFailed    int                         `json:"tasks_failed"`
}

// Orchestrator ties planning, the scheduler loop and session bookkeeping together.
type Orchestrator struct {
	planner  Planner
	runner   *Runner
	store    *SessionStore
	events   events.Publisher
	recorder contextlog.Recorder

	wg sync.WaitGroup
}

// New creates an orchestrator. The runner config supplies the event
// publisher and recorder shared by every session.
func New(planner Planner, a Agent, store *SessionStore, cfg RunnerConfig) *Orchestrator {
	if store == nil {
		store = NewSessionStore()
	}
	runner := NewRunner(cfg, a)
	return &Orchestrator{
		planner:  planner,
		runner:   runner,
		store:    store,
		events:   runner.config.Events,
		recorder: runner.config.Recorder,
	}
}

// Store returns the session store.
func (o *Orchestrator) Store() *SessionStore {
	return o.store
}

// ProcessGoal runs objective to completion and returns its summary. The
// summary is returned alongside the error when the session fails.
func (o *Orchestrator) ProcessGoal(ctx context.Context, objective string) (*Summary, error) {
	return o.Run(ctx, o.store.Create(objective))
}

// Submit starts objective in the background and returns its session at once.
func (o *Orchestrator) Submit(ctx context.Context, objective string) *Session {
	s := o.store.Create(objective)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.Run(ctx, s); err != nil {
			log.Printf("WARNING: session %s: %v", s.ID, err)
		}
	}()
	return s
}

// Wait blocks until every submitted session has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Run plans and executes an already created session.
func (o *Orchestrator) Run(ctx context.Context, s *Session) (*Summary, error) {
	o.record(ctx, s, nil)

	p, err := o.planner.Plan(contextlog.WithSession(ctx, s.ID), s.Objective, s.ID)
	if err != nil {
		return o.finish(ctx, s, &SessionError{SessionID: s.ID, Err: err})
	}

	graph, err := scheduler.FromPlan(p.Tasks)
	if err != nil {
		return o.finish(ctx, s, &SessionError{SessionID: s.ID, Err: fmt.Errorf("failed to build task graph: %w", err)})
	}
	if graph.Cyclic() {
		log.Printf("WARNING: session %s: plan has a dependency cycle; tasks on it will not run", s.ID)
	}

	s.attach(p, graph)
	o.setState(s, StateRunning, nil)
	o.record(ctx, s, nil)

	return o.finish(ctx, s, o.runner.Execute(ctx, s))
}

// finish moves s to its terminal state and builds the summary.
func (o *Orchestrator) finish(ctx context.Context, s *Session, err error) (*Summary, error) {
	switch {
	case err == nil:
		o.setState(s, StateCompleted, nil)
	case errors.Is(err, ErrCancelled):
		o.setState(s, StateCancelled, err)
	default:
		o.setState(s, StateFailed, err)
	}

	summary := s.Summary()
	o.record(ctx, s, summary)
	return summary, err
}

func (o *Orchestrator) setState(s *Session, state State, err error) {
	s.setState(state, err)
	if o.events != nil {
		o.events.Publish(events.TopicSession, events.SessionStateEvent{
			SessionID: s.ID,
			State:     string(state),
			Err:       err,
			Timestamp: time.Now(),
		})
	}
}

// record writes the session trace to the context log. Best-effort.
func (o *Orchestrator) record(ctx context.Context, s *Session, summary *Summary) {
	rec := contextlog.SessionRecord{
		ID:        s.ID,
		Objective: s.Objective,
		State:     string(s.State()),
		CreatedAt: s.CreatedAt,
	}
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			log.Printf("WARNING: failed to encode summary of session %s: %v", s.ID, err)
		} else {
			rec.Summary = string(data)
		}
	}
	if err := o.recorder.RecordSession(context.WithoutCancel(ctx), rec); err != nil {
		log.Printf("WARNING: failed to record session %s: %v", s.ID, err)
	}
}

// Summary reports the session's results so far.
func (s *Session) Summary() *Summary {
	sum := &Summary{
		SessionID: s.ID,
		Objective: s.Objective,
		Status:    s.State(),
		Plan:      s.Plan(),
		Results:   make(map[string]scheduler.Output),
	}
	if err := s.Err(); err != nil {
		sum.Error = err.Error()
	}

	for _, t := range s.Graph().Tasks() {
		switch t.Status {
		case scheduler.TaskCompleted:
			sum.TasksCompleted++
			sum.Results[t.ID] = t.Output
		case scheduler.TaskFailed:
			sum.TasksFailed++
		}
	}
	return sum
}
