package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/aristath/goalrunner/internal/backend"
	"github.com/aristath/goalrunner/internal/config"
	"github.com/aristath/goalrunner/internal/orchestrator"
)

// fakeOllama answers planner prompts with a two-task plan and every other
// prompt with a short text naming the model.
type fakeOllama struct {
	mu     sync.Mutex
	models map[string]int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.models[req.Model]++
	f.mu.Unlock()

	response := "done by " + req.Model
	if strings.Contains(req.Prompt, "Planner agent") {
		response = "```json\n" + `{"plan_id": "p1", "subtasks": [
			{"id": "design", "type": "design", "description": "Design the blog", "agent": "designer", "dependencies": []},
			{"id": "code", "type": "code", "description": "Write the blog", "agent": "coder", "dependencies": ["design"]}
		]}` + "\n```"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "response": response, "done": true})
}

func newFakeOllama(t *testing.T) (*fakeOllama, *httptest.Server) {
	t.Helper()
	f := &fakeOllama{models: make(map[string]int)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestAppProcessGoal(t *testing.T) {
	f, srv := newFakeOllama(t)

	cfg := config.DefaultConfig()
	cfg.Backend.Endpoint = srv.URL
	cfg.Backend.Retry.Disabled = true
	cfg.ContextLog.Path = filepath.Join(t.TempDir(), "context.db")
	cfg.Tools.Workspace = false

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}
	defer a.Close()

	summary, err := a.orch.ProcessGoal(ctx, "build a blog")
	if err != nil {
		t.Fatalf("ProcessGoal() error: %v", err)
	}
	if summary.Status != orchestrator.StateCompleted || summary.TasksCompleted != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := summary.Results["code"]["content"]; got != "done by deepseek-coder" {
		t.Errorf("code content = %v", got)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Planner and designer on the control model, coder on the code model
	if f.models["codellama:instruct"] != 2 || f.models["deepseek-coder"] != 1 {
		t.Errorf("model calls = %v", f.models)
	}

	rec, err := a.store.Session(ctx, summary.SessionID)
	if err != nil {
		t.Fatalf("Session() error: %v", err)
	}
	if rec.Objective != "build a blog" {
		t.Errorf("recorded objective = %q", rec.Objective)
	}
}

func TestRunCommand(t *testing.T) {
	_, srv := newFakeOllama(t)

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OLLAMA_URL", srv.URL)
	t.Setenv("CODE_MODEL", "qwen-coder")

	project := filepath.Join(dir, "project.json")
	if err := os.WriteFile(project, []byte(`{"context_log": {"path": ""}, "tools": {"workspace": false}}`), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", project, "run", "build", "a", "blog"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		cfgFile = ""
	})

	if err := Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	var summary orchestrator.Summary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("output is not a summary: %v\n%s", err, out.String())
	}
	if summary.Objective != "build a blog" || summary.Status != orchestrator.StateCompleted {
		t.Errorf("summary = %+v", summary)
	}
	if got := summary.Results["code"]["content"]; got != "done by qwen-coder" {
		t.Errorf("CODE_MODEL override not applied, content = %v", got)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CONTROL_MODEL", "llama3")
	t.Setenv("GOALRUNNER_CONCURRENCY", "4")

	cfgFile = filepath.Join(dir, "project.json")
	t.Cleanup(func() { cfgFile = "" })
	if err := os.WriteFile(cfgFile, []byte(`{"models": {"control": "mistral", "code": "starcoder"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if cfg.Models.Control != "llama3" {
		t.Errorf("Control = %q, want environment value", cfg.Models.Control)
	}
	if cfg.Models.Code != "starcoder" {
		t.Errorf("Code = %q, want file value", cfg.Models.Code)
	}
	if cfg.Scheduler.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Scheduler.Concurrency)
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSummary(&buf, nil); err != nil || buf.Len() != 0 {
		t.Errorf("nil summary wrote %q, err %v", buf.String(), err)
	}

	if err := writeSummary(&buf, &orchestrator.Summary{SessionID: "s1", Status: orchestrator.StateFailed, Error: "boom"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"error": "boom"`) || !strings.HasSuffix(buf.String(), "}\n") {
		t.Errorf("summary output = %q", buf.String())
	}
}

// TestProcessManagerKillAllOnShutdown verifies that ProcessManager.KillAll()
// correctly terminates tracked processes during simulated shutdown.
func TestProcessManagerKillAllOnShutdown(t *testing.T) {
	pm := backend.NewProcessManager()

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	pm.Track(cmd)

	ctx, cancel := context.WithCancel(context.Background())
	a := &app{pm: pm}
	done := make(chan struct{})
	go func() {
		a.shutdown(ctx)
		close(done)
	}()
	cancel()
	<-done

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case err := <-waitErr:
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not terminate after shutdown")
	}
	pm.Untrack(cmd)
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}

	if err := ctx.Err(); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
