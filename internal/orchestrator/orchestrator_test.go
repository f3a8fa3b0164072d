package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aristath/goalrunner/internal/agent"
	"github.com/aristath/goalrunner/internal/contextlog"
	"github.com/aristath/goalrunner/internal/plan"
	"github.com/aristath/goalrunner/internal/scheduler"
)

// planFunc adapts a function to Planner.
type planFunc func(ctx context.Context, objective, sessionID string) (*plan.Plan, error)

func (f planFunc) Plan(ctx context.Context, objective, sessionID string) (*plan.Plan, error) {
	return f(ctx, objective, sessionID)
}

func fixedPlan(specs ...scheduler.TaskSpec) planFunc {
	return func(ctx context.Context, objective, sessionID string) (*plan.Plan, error) {
		return &plan.Plan{SessionID: sessionID, Objective: objective, Tasks: specs}, nil
	}
}

func newMemoryStore(t *testing.T) *contextlog.SQLiteStore {
	t.Helper()
	store, err := contextlog.NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProcessGoal(t *testing.T) {
	log := newMemoryStore(t)
	o := New(fixedPlan(
		spec("design", scheduler.RoleDesigner),
		spec("code", scheduler.RoleCoder, "design"),
	), &mockAgent{}, nil, RunnerConfig{Recorder: log})

	summary, err := o.ProcessGoal(context.Background(), "build a CLI")
	if err != nil {
		t.Fatalf("ProcessGoal() error = %v", err)
	}

	if summary.Status != StateCompleted || summary.TasksCompleted != 2 || summary.TasksFailed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Results["code"].Content() != "done code" {
		t.Errorf("results = %+v", summary.Results)
	}

	s, err := o.Store().Get(summary.SessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done() should be closed after completion")
	}

	rec, err := log.Session(context.Background(), summary.SessionID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if rec.State != string(StateCompleted) || rec.Objective != "build a CLI" {
		t.Errorf("session record = %+v", rec)
	}
	var recorded Summary
	if err := json.Unmarshal([]byte(rec.Summary), &recorded); err != nil {
		t.Fatalf("recorded summary is not JSON: %v", err)
	}
	if recorded.TasksCompleted != 2 {
		t.Errorf("recorded summary = %+v", recorded)
	}

	interactions, err := log.Interactions(context.Background(), summary.SessionID)
	if err != nil {
		t.Fatalf("Interactions() error = %v", err)
	}
	if len(interactions) != 2 || interactions[0].FromRole != "designer" || interactions[0].ToRole != "coder" {
		t.Errorf("interactions = %+v", interactions)
	}
}

func TestProcessGoalPlanFailure(t *testing.T) {
	bad := planFunc(func(ctx context.Context, objective, sessionID string) (*plan.Plan, error) {
		return plan.ParsePlan("no json here", objective, sessionID)
	})
	m := &mockAgent{}
	o := New(bad, m, nil, RunnerConfig{})

	summary, err := o.ProcessGoal(context.Background(), "anything")
	if !errors.Is(err, plan.ErrExtractionFailed) {
		t.Fatalf("error = %v, want ErrExtractionFailed", err)
	}
	if summary.Status != StateFailed || summary.Error == "" {
		t.Errorf("summary = %+v", summary)
	}
	if len(m.Invoked()) != 0 {
		t.Error("no task should run when planning fails")
	}
}

func TestProcessGoalInvalidDependency(t *testing.T) {
	o := New(fixedPlan(spec("a", scheduler.RoleCoder, "ghost")), &mockAgent{}, nil, RunnerConfig{})

	_, err := o.ProcessGoal(context.Background(), "x")
	if !errors.Is(err, scheduler.ErrInvalidDependency) {
		t.Errorf("error = %v, want ErrInvalidDependency", err)
	}
}

func TestProcessGoalCyclicPlan(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	m := &mockAgent{}
	o := New(fixedPlan(
		spec("ok", scheduler.RoleCoder),
		spec("x", scheduler.RoleCoder, "y"),
		spec("y", scheduler.RoleCoder, "x"),
	), m, nil, RunnerConfig{})

	summary, err := o.ProcessGoal(context.Background(), "x")
	var stuck *scheduler.StuckError
	if !errors.As(err, &stuck) || stuck.Reason != scheduler.StuckCycle {
		t.Fatalf("error = %v, want cycle StuckError", err)
	}
	if summary.TasksCompleted != 1 {
		t.Errorf("summary = %+v, want the independent task completed", summary)
	}
	if !strings.Contains(buf.String(), "dependency cycle") {
		t.Errorf("log = %q, want dependency cycle warning", buf.String())
	}
}

func TestProcessGoalTaskFailure(t *testing.T) {
	m := &mockAgent{onInvoke: func(ctx context.Context, req agent.Request) (scheduler.Output, error) {
		return nil, errors.New("backend down")
	}}
	o := New(fixedPlan(spec("a", scheduler.RoleCoder)), m, nil, RunnerConfig{})

	summary, err := o.ProcessGoal(context.Background(), "x")
	var de *TaskDispatchError
	if !errors.As(err, &de) || de.TaskID != "a" {
		t.Fatalf("error = %v, want TaskDispatchError for a", err)
	}
	if summary.Status != StateFailed || summary.TasksFailed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestSubmitRunsInBackground(t *testing.T) {
	release := make(chan struct{})
	m := &mockAgent{onInvoke: func(ctx context.Context, req agent.Request) (scheduler.Output, error) {
		<-release
		return scheduler.Output{"content": "ok"}, nil
	}}
	o := New(fixedPlan(spec("a", scheduler.RoleCoder)), m, nil, RunnerConfig{})

	s := o.Submit(context.Background(), "x")
	if s.State().Terminal() {
		t.Fatal("session finished before the agent returned")
	}
	close(release)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	o.Wait()
	if s.State() != StateCompleted {
		t.Errorf("state = %s", s.State())
	}
}

func TestCancelledSessionState(t *testing.T) {
	var o *Orchestrator
	m := &mockAgent{onInvoke: func(ctx context.Context, req agent.Request) (scheduler.Output, error) {
		for _, s := range o.Store().List() {
			s.Cancel()
		}
		return scheduler.Output{"content": "ok"}, nil
	}}
	o = New(fixedPlan(spec("a", scheduler.RoleCoder), spec("b", scheduler.RoleCoder, "a")), m, nil, RunnerConfig{})

	summary, err := o.ProcessGoal(context.Background(), "x")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	if summary.Status != StateCancelled || summary.TasksCompleted != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestStatusProgress(t *testing.T) {
	s := newTestSession(t, spec("a", scheduler.RoleDesigner), spec("b", scheduler.RoleCoder, "a"))
	if err := s.Graph().MarkInProgress("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Graph().MarkCompleted("a", scheduler.Output{"content": "x"}); err != nil {
		t.Fatal(err)
	}

	st := s.Status()
	if st.OverallProgress != 50 {
		t.Errorf("OverallProgress = %v, want 50", st.OverallProgress)
	}
	if st.Tasks[0].Progress != 100 || st.Tasks[1].Progress != 0 {
		t.Errorf("task progress = %v, %v", st.Tasks[0].Progress, st.Tasks[1].Progress)
	}
	if st.Tasks[0].Role != scheduler.RoleDesigner || st.SessionID != "s-test" {
		t.Errorf("status = %+v", st)
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	json.Unmarshal(data, &raw)
	if raw["overall_progress"] != 50.0 || raw["tasks"].([]any)[0].(map[string]any)["status"] != "completed" {
		t.Errorf("status JSON = %s", data)
	}
}

func TestStatusEmptyGraph(t *testing.T) {
	s := NewSession("s", "o")
	st := s.Status()
	if st.OverallProgress != 0 || len(st.Tasks) != 0 || st.State != StatePlanning {
		t.Errorf("status = %+v", st)
	}
}

func TestTaskProgress(t *testing.T) {
	tests := []struct {
		status scheduler.TaskStatus
		want   float64
	}{
		{scheduler.TaskPending, 0},
		{scheduler.TaskInProgress, 50},
		{scheduler.TaskCompleted, 100},
		{scheduler.TaskFailed, 0},
		{scheduler.TaskNeedsRevision, 0},
	}
	for _, tt := range tests {
		if got := TaskProgress(tt.status); got != tt.want {
			t.Errorf("TaskProgress(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	a := store.Create("first")
	b := store.Create("second")

	if a.ID == b.ID || a.ID == "" {
		t.Fatalf("ids not unique: %q %q", a.ID, b.ID)
	}

	got, err := store.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("Get() = %v, %v", got, err)
	}

	list := store.List()
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Errorf("List() = %v", list)
	}

	st, err := store.Status(b.ID)
	if err != nil || st.Objective != "second" {
		t.Errorf("Status() = %+v, %v", st, err)
	}

	if err := store.Dispose(a.ID); err != nil {
		t.Fatalf("Dispose() error = %v", err)
	}
	if !a.Cancelled() {
		t.Error("Dispose should cancel the session")
	}
	if _, err := store.Get(a.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after Dispose error = %v", err)
	}
	if _, err := store.Status("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Status() unknown error = %v", err)
	}
	if err := store.Dispose("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Dispose() unknown error = %v", err)
	}
}

func TestSessionErrorMessage(t *testing.T) {
	err := &SessionError{SessionID: "s1", InFlight: []string{"a", "b"}, Err: ErrCancelled}
	if got := err.Error(); got != "session s1 failed (in flight: a, b): session cancelled" {
		t.Errorf("Error() = %q", got)
	}
}
