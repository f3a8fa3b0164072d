package scheduler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// Payload carries the data attached to a status transition.
type Payload struct {
	Output Output // Stored on completion
	Err    error  // Stored as ErrorMessage on failure
}

// Graph holds every task of one objective together with its dependency edges.
// All mutation goes through the graph lock; readers receive copies.
type Graph struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	order      []string            // Plan declaration order
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
	declared   map[string]struct{} // IDs declared by the plan, for forward references
	now        func() time.Time
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
		declared:   make(map[string]struct{}),
		now:        time.Now,
	}
}

// FromPlan builds a graph from planner specs in declaration order.
// Dependencies may reference siblings declared later in the same plan.
func FromPlan(specs []TaskSpec) (*Graph, error) {
	g := NewGraph()
	for _, spec := range specs {
		g.declared[spec.ID] = struct{}{}
	}
	for _, spec := range specs {
		if err := g.AddTask(spec); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddTask inserts a pending task built from spec. Every dependency must be
// declared in the same plan or already present in the graph.
func (g *Graph) AddTask(spec TaskSpec) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if strings.TrimSpace(spec.ID) == "" {
		return fmt.Errorf("task has empty ID")
	}
	if _, exists := g.tasks[spec.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", spec.ID)
	}

	deps := dedupe(spec.Dependencies)
	for _, depID := range deps {
		_, present := g.tasks[depID]
		_, declared := g.declared[depID]
		if !present && !declared && depID != spec.ID {
			return &InvalidDependencyError{TaskID: spec.ID, DependencyID: depID}
		}
	}

	now := g.now()
	task := &Task{
		ID:           spec.ID,
		Type:         spec.Type,
		Role:         spec.Role,
		Status:       TaskPending,
		Description:  spec.Description,
		Input:        spec.Input,
		Dependencies: deps,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	g.tasks[task.ID] = task
	g.order = append(g.order, task.ID)
	g.declared[task.ID] = struct{}{}

	// Build dependents map for efficient downstream lookup
	for _, depID := range deps {
		g.dependents[depID] = append(g.dependents[depID], task.ID)
	}

	return nil
}

// ReadyTasks returns, in declaration order, every pending task whose
// dependencies are all completed. It never mutates the graph.
func (g *Graph) ReadyTasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ready := []*Task{}
	for _, id := range g.order {
		task := g.tasks[id]
		if task.Status != TaskPending {
			continue
		}
		if g.dependenciesCompleted(task) {
			ready = append(ready, cloneTask(task))
		}
	}
	return ready
}

// dependenciesCompleted must be called with the lock held.
func (g *Graph) dependenciesCompleted(task *Task) bool {
	for _, depID := range task.Dependencies {
		dep, exists := g.tasks[depID]
		if !exists || dep.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// allowed lists the forward edges of the task state machine.
// failed -> completed is reserved for Recover.
var allowed = map[TaskStatus][]TaskStatus{
	TaskPending:       {TaskInProgress},
	TaskInProgress:    {TaskCompleted, TaskFailed, TaskNeedsRevision},
	TaskFailed:        {TaskNeedsRevision},
	TaskNeedsRevision: {TaskPending},
}

func canTransition(from, to TaskStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves a task to a new status, enforcing the state machine.
func (g *Graph) Transition(taskID string, to TaskStatus, payload Payload) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}
	if !canTransition(task.Status, to) {
		return fmt.Errorf("%w: task %q %s -> %s", ErrInvalidTransition, taskID, task.Status, to)
	}
	if to == TaskInProgress {
		for _, depID := range task.Dependencies {
			dep, ok := g.tasks[depID]
			if !ok || dep.Status != TaskCompleted {
				return fmt.Errorf("%w: task %q waits on %q", ErrDependencyNotMet, taskID, depID)
			}
		}
	}

	g.apply(task, to, payload)
	return nil
}

// Recover converts a failed task into a completed one with the recovery output.
func (g *Graph) Recover(taskID string, output Output) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskFailed {
		return fmt.Errorf("%w: task %q is %s, only failed tasks can be recovered", ErrInvalidTransition, taskID, task.Status)
	}
	if len(output) == 0 {
		return fmt.Errorf("recovery output for task %q is empty", taskID)
	}

	g.apply(task, TaskCompleted, Payload{Output: output})
	return nil
}

// apply must be called with the write lock held.
func (g *Graph) apply(task *Task, to TaskStatus, payload Payload) {
	task.Status = to
	task.UpdatedAt = g.now()

	switch to {
	case TaskCompleted:
		task.Output = payload.Output
		task.ErrorMessage = ""
	case TaskFailed:
		task.Output = nil
		if payload.Err != nil {
			task.ErrorMessage = payload.Err.Error()
		}
	default:
		task.ErrorMessage = ""
	}
}

// MarkInProgress sets task status to TaskInProgress.
func (g *Graph) MarkInProgress(taskID string) error {
	return g.Transition(taskID, TaskInProgress, Payload{})
}

// MarkCompleted sets task status to TaskCompleted and stores the output.
func (g *Graph) MarkCompleted(taskID string, output Output) error {
	return g.Transition(taskID, TaskCompleted, Payload{Output: output})
}

// MarkFailed sets task status to TaskFailed and stores the error message.
func (g *Graph) MarkFailed(taskID string, err error) error {
	return g.Transition(taskID, TaskFailed, Payload{Err: err})
}

// IsStuck reports whether pending tasks remain while none of them is ready.
func (g *Graph) IsStuck() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pending := false
	for _, id := range g.order {
		task := g.tasks[id]
		if task.Status != TaskPending {
			continue
		}
		pending = true
		if g.dependenciesCompleted(task) {
			return false
		}
	}
	return pending
}

// Stuck describes why pending tasks cannot make progress. It returns nil when
// the graph is not stuck.
func (g *Graph) Stuck() *StuckError {
	if !g.IsStuck() {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var pending []string
	for _, id := range g.order {
		if g.tasks[id].Status == TaskPending {
			pending = append(pending, id)
		}
	}

	// Only edges between pending tasks can form a cycle that blocks them.
	reason := StuckUnsatisfiable
	if g.cyclic(pending) {
		reason = StuckCycle
	}

	return &StuckError{TaskIDs: pending, Reason: reason}
}

// Cyclic reports whether any dependency cycle exists in the graph. Cycles are
// accepted when tasks are added; the tasks on or behind one never become
// ready and are reported by Stuck once everything else has finished.
func (g *Graph) Cyclic() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cyclic(g.order)
}

// cyclic sorts the sub-graph induced by ids. Caller holds the lock.
func (g *Graph) cyclic(ids []string) bool {
	in := make(map[string]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}

	var edges []toposort.Edge
	for _, id := range ids {
		edges = append(edges, toposort.Edge{nil, id})
		for _, depID := range g.tasks[id].Dependencies {
			if in[depID] {
				// depID must come before id
				edges = append(edges, toposort.Edge{depID, id})
			}
		}
	}

	_, err := toposort.Toposort(edges)
	return err != nil
}

// Get returns a copy of the task with the given ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in declaration order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[id]))
	}
	return tasks
}

// Dependents returns the IDs of tasks that depend on taskID, in declaration order.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]string(nil), g.dependents[taskID]...)
}

// Counts returns the number of tasks in each status.
func (g *Graph) Counts() map[TaskStatus]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[TaskStatus]int, len(statusNames))
	for _, task := range g.tasks {
		counts[task.Status]++
	}
	return counts
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Done reports whether every task reached a terminal status.
func (g *Graph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, task := range g.tasks {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}
