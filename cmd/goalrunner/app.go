package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aristath/goalrunner/internal/agent"
	"github.com/aristath/goalrunner/internal/backend"
	"github.com/aristath/goalrunner/internal/config"
	"github.com/aristath/goalrunner/internal/contextlog"
	"github.com/aristath/goalrunner/internal/events"
	"github.com/aristath/goalrunner/internal/orchestrator"
	"github.com/aristath/goalrunner/internal/toolcall"
)

// app holds everything one process needs to run sessions.
type app struct {
	cfg     *config.Config
	pm      *backend.ProcessManager
	bus     *events.EventBus
	backend backend.Backend
	store   *contextlog.SQLiteStore
	orch    *orchestrator.Orchestrator
}

// newApp wires the backend, context log, tool dispatcher, agents and
// orchestrator from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	a := &app{
		cfg: cfg,
		pm:  backend.NewProcessManager(),
		bus: events.NewEventBus(),
	}

	if cfg.ContextLog.Path == "" {
		a.store, err = contextlog.NewMemoryStore(ctx)
	} else {
		a.store, err = contextlog.NewSQLiteStore(ctx, cfg.ContextLog.Path)
	}
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening context log: %w", err)
	}

	a.backend, err = backend.New(cfg.BackendSettings(workDir), a.pm)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	registry := toolcall.NewRegistry()
	if cfg.Tools.Workspace {
		dir := cfg.Tools.WorkingDirectory
		if dir == "" {
			dir = workDir
		}
		toolcall.RegisterWorkspaceTools(registry, dir)
	}
	tools := toolcall.NewDispatcher(cfg.ToolSettings(), registry, a.store)

	invoker, err := agent.NewInvoker(a.backend, agent.Config{
		Profiles:  cfg.Profiles(),
		Timeout:   cfg.AgentTimeout(),
		Tools:     tools,
		Retriever: a.store,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating agents: %w", err)
	}

	var recovery orchestrator.RecoveryPolicy = orchestrator.NoRecovery{}
	if cfg.Scheduler.RetryAttempts > 0 {
		recovery = orchestrator.RetryRecovery{Attempts: cfg.Scheduler.RetryAttempts}
	}

	a.orch = orchestrator.New(invoker, invoker, nil, orchestrator.RunnerConfig{
		Concurrency:    cfg.Scheduler.Concurrency,
		RecentMessages: cfg.Scheduler.RecentMessages,
		Recovery:       recovery,
		Events:         a.bus,
		Recorder:       a.store,
	})

	return a, nil
}

// shutdown kills backend subprocesses once ctx ends.
func (a *app) shutdown(ctx context.Context) {
	<-ctx.Done()
	if err := a.pm.KillAll(); err != nil {
		log.Printf("ERROR: killing subprocesses: %v", err)
	}
}

// Close releases the backend, event bus and context log.
func (a *app) Close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			log.Printf("WARNING: closing backend: %v", err)
		}
	}
	a.bus.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("WARNING: closing context log: %v", err)
		}
	}
}
