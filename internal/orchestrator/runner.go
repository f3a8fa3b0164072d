package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/goalrunner/internal/agent"
	"github.com/aristath/goalrunner/internal/contextlog"
	"github.com/aristath/goalrunner/internal/events"
	"github.com/aristath/goalrunner/internal/scheduler"
	"github.com/aristath/goalrunner/internal/toolcall"
)

// Agent runs one task. *agent.Invoker is the production implementation.
type Agent interface {
	Invoke(ctx context.Context, req agent.Request) (scheduler.Output, error)
}

// RunnerConfig configures the scheduler loop.
type RunnerConfig struct {
	Concurrency    int                 // Max tasks of one ready batch in flight (default 1)
	RecentMessages int                 // Messages folded into each prompt (default 5)
	Recovery       RecoveryPolicy      // Defaults to NoRecovery
	Events         events.Publisher    // Optional
	Recorder       contextlog.Recorder // Optional
}

// Runner executes a session's task graph in dependency order.
type Runner struct {
	config RunnerConfig
	agent  Agent

	mu       sync.Mutex
	attempts map[string]int // failures per "session/task"
}

// NewRunner creates a runner dispatching tasks to a.
func NewRunner(cfg RunnerConfig, a Agent) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = agent.DefaultRecentMessages
	}
	if cfg.Recovery == nil {
		cfg.Recovery = NoRecovery{}
	}
	if cfg.Recorder == nil {
		cfg.Recorder = contextlog.Nop{}
	}

	return &Runner{
		config:   cfg,
		agent:    a,
		attempts: make(map[string]int),
	}
}

// Execute runs ready batches until every task is terminal. It returns a
// *SessionError wrapping a *scheduler.StuckError, a *TaskDispatchError or
// ErrCancelled when the session cannot finish.
func (r *Runner) Execute(ctx context.Context, s *Session) error {
	graph := s.Graph()
	ctx = contextlog.WithSession(ctx, s.ID)

	for {
		ready := graph.ReadyTasks()
		if len(ready) == 0 {
			if stuck := graph.Stuck(); stuck != nil {
				return &SessionError{SessionID: s.ID, Err: stuck}
			}
			return nil
		}

		if s.Cancelled() {
			return &SessionError{SessionID: s.ID, Err: ErrCancelled}
		}
		if err := ctx.Err(); err != nil {
			return &SessionError{SessionID: s.ID, Err: fmt.Errorf("%w: %w", ErrCancelled, err)}
		}

		if err := r.runBatch(ctx, s, ready); err != nil {
			if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
				err = fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			return &SessionError{SessionID: s.ID, InFlight: unfinished(graph, ready), Err: err}
		}
	}
}

// runBatch executes one ready set with bounded concurrency. With the default
// limit of 1 tasks run one at a time in declaration order. Once a task fails
// or the session is cancelled no further task of the batch starts; tasks
// already running finish.
func (r *Runner) runBatch(ctx context.Context, s *Session, ready []*scheduler.Task) error {
	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)

	var stopped atomic.Bool
	for _, task := range ready {
		g.Go(func() error {
			if stopped.Load() {
				return nil
			}
			if s.Cancelled() {
				stopped.Store(true)
				return ErrCancelled
			}
			if err := ctx.Err(); err != nil {
				stopped.Store(true)
				return fmt.Errorf("%w: %w", ErrCancelled, err)
			}
			if err := r.executeTask(ctx, s, task); err != nil {
				stopped.Store(true)
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// executeTask dispatches one task and stores its outcome in the graph.
func (r *Runner) executeTask(ctx context.Context, s *Session, task *scheduler.Task) error {
	graph := s.Graph()
	start := time.Now()

	if err := graph.MarkInProgress(task.ID); err != nil {
		return &TaskDispatchError{TaskID: task.ID, Role: task.Role, Err: err}
	}
	r.publish(events.TopicTask, events.TaskStartedEvent{
		SessionID:   s.ID,
		ID:          task.ID,
		Description: task.Description,
		Role:        string(task.Role),
		Timestamp:   time.Now(),
	})
	r.publishProgress(s)

	out, err := r.agent.Invoke(ctx, agent.Request{
		Task:         task,
		Dependencies: dependencies(graph, task),
		Recent:       s.Messages().Recent(r.config.RecentMessages),
	})
	if err == nil {
		if err = graph.MarkCompleted(task.ID, out); err == nil {
			r.completed(ctx, s, task, out, time.Since(start))
			return nil
		}
	}

	return r.fail(ctx, s, task, err, time.Since(start))
}

// fail records a task failure and applies the recovery policy.
func (r *Runner) fail(ctx context.Context, s *Session, task *scheduler.Task, cause error, took time.Duration) error {
	graph := s.Graph()

	if err := graph.MarkFailed(task.ID, cause); err != nil {
		log.Printf("ERROR: failed to mark task %q as failed: %v", task.ID, err)
	}
	r.publish(events.TopicTask, events.TaskFailedEvent{
		SessionID: s.ID,
		ID:        task.ID,
		Err:       cause,
		Duration:  took,
		Timestamp: time.Now(),
	})

	attempt := r.recordAttempt(s.ID, task.ID)
	snapshot, _ := graph.Get(task.ID)
	decision := r.config.Recovery.Recover(ctx, snapshot, attempt, cause)

	switch {
	case len(decision.Output) > 0:
		if err := graph.Recover(task.ID, decision.Output); err != nil {
			return &TaskDispatchError{TaskID: task.ID, Role: task.Role, Err: errors.Join(cause, err)}
		}
		r.publish(events.TopicTask, events.TaskRecoveredEvent{
			SessionID: s.ID,
			ID:        task.ID,
			Attempts:  attempt,
			Timestamp: time.Now(),
		})
		r.completed(ctx, s, task, decision.Output, took)
		return nil

	case decision.Revise:
		if err := graph.Transition(task.ID, scheduler.TaskNeedsRevision, scheduler.Payload{}); err != nil {
			return &TaskDispatchError{TaskID: task.ID, Role: task.Role, Err: errors.Join(cause, err)}
		}
		if err := graph.Transition(task.ID, scheduler.TaskPending, scheduler.Payload{}); err != nil {
			return &TaskDispatchError{TaskID: task.ID, Role: task.Role, Err: errors.Join(cause, err)}
		}
		log.Printf("WARNING: task %q failed (attempt %d), retrying: %v", task.ID, attempt, cause)
		r.publishProgress(s)
		return nil
	}

	r.publishProgress(s)
	return &TaskDispatchError{TaskID: task.ID, Role: task.Role, Err: cause}
}

// completed appends the agent message, records the interaction and
// publishes completion events for a task that reached completed.
func (r *Runner) completed(ctx context.Context, s *Session, task *scheduler.Task, out scheduler.Output, took time.Duration) {
	graph := s.Graph()

	to := scheduler.RolePlanner
	if dependents := graph.Dependents(task.ID); len(dependents) > 0 {
		if next, ok := graph.Get(dependents[0]); ok {
			to = next.Role
		}
	}

	msg := agent.Message{
		FromRole: task.Role,
		ToRole:   to,
		Content:  out.Content(),
		TaskID:   task.ID,
	}
	s.Messages().Append(msg)

	interaction := contextlog.Interaction{
		SessionID:   s.ID,
		TaskID:      task.ID,
		FromRole:    string(msg.FromRole),
		ToRole:      string(msg.ToRole),
		MessageType: "task_output",
		Content:     msg.Content,
	}
	if err := r.config.Recorder.RecordAgentInteraction(context.WithoutCancel(ctx), interaction); err != nil {
		log.Printf("WARNING: failed to record interaction for task %q: %v", task.ID, err)
	}

	if results, ok := out["tool_results"].([]toolcall.ToolResult); ok {
		for _, tr := range results {
			r.publish(events.TopicTool, events.ToolCallEvent{
				SessionID: s.ID,
				ID:        task.ID,
				Tool:      tr.Tool,
				Success:   tr.Success,
				Error:     tr.Error,
				Timestamp: time.Now(),
			})
		}
	}

	r.publish(events.TopicTask, events.TaskCompletedEvent{
		SessionID: s.ID,
		ID:        task.ID,
		Content:   out.Content(),
		Duration:  took,
		Timestamp: time.Now(),
	})
	r.publishProgress(s)
}

func (r *Runner) recordAttempt(sessionID, taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionID + "/" + taskID
	r.attempts[key]++
	return r.attempts[key]
}

func (r *Runner) publish(topic string, ev events.Event) {
	if r.config.Events != nil {
		r.config.Events.Publish(topic, ev)
	}
}

func (r *Runner) publishProgress(s *Session) {
	if r.config.Events == nil {
		return
	}
	counts := s.Graph().Counts()
	r.config.Events.Publish(events.TopicSession, events.SessionProgressEvent{
		SessionID: s.ID,
		Total:     s.Graph().Len(),
		Completed: counts[scheduler.TaskCompleted],
		Running:   counts[scheduler.TaskInProgress],
		Failed:    counts[scheduler.TaskFailed],
		Pending:   counts[scheduler.TaskPending] + counts[scheduler.TaskNeedsRevision],
		Overall:   s.Status().OverallProgress,
		Timestamp: time.Now(),
	})
}

// dependencies snapshots the dependencies of task.
func dependencies(graph *scheduler.Graph, task *scheduler.Task) []*scheduler.Task {
	deps := make([]*scheduler.Task, 0, len(task.Dependencies))
	for _, id := range task.Dependencies {
		if dep, ok := graph.Get(id); ok {
			deps = append(deps, dep)
		}
	}
	return deps
}

// unfinished returns the ids from batch that were dispatched but did not complete.
func unfinished(graph *scheduler.Graph, batch []*scheduler.Task) []string {
	var ids []string
	for _, t := range batch {
		cur, ok := graph.Get(t.ID)
		if !ok {
			continue
		}
		if cur.Status == scheduler.TaskInProgress || cur.Status == scheduler.TaskFailed {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
