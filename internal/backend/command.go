package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command runs a local CLI per request, e.g. "ollama run {model}", with the
// prompt on stdin and the completion read from stdout.
type Command struct {
	command string
	args    []string
	workDir string
	timeout time.Duration
	procMgr *ProcessManager
}

// NewCommand creates a command backend.
// The ProcessManager is optional; if nil, subprocesses won't be tracked.
func NewCommand(cfg Config, procMgr *ProcessManager) (*Command, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("command backend requires a command")
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &Command{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		workDir: workDir,
		timeout: cfg.Timeout,
		procMgr: procMgr,
	}, nil
}

// buildArgs substitutes the request model into the configured arguments.
func (c *Command) buildArgs(model string) []string {
	args := make([]string, len(c.args))
	for i, a := range c.args {
		args[i] = strings.ReplaceAll(a, "{model}", model)
	}
	return args
}

// Complete implements Backend.
func (c *Command) Complete(ctx context.Context, req Request) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := newCommand(ctx, c.command, c.buildArgs(req.Model)...)
	cmd.Dir = c.workDir
	cmd.Stdin = strings.NewReader(req.Prompt)

	start := time.Now()
	stdout, stderr, err := executeCommand(ctx, cmd, c.procMgr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("%s command interrupted: %w", c.command, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Response{}, &Error{Status: exitErr.ExitCode(), Body: strings.TrimSpace(string(stderr))}
		}
		return Response{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return Response{
		Content:  strings.TrimSpace(string(stdout)),
		Model:    req.Model,
		Duration: time.Since(start),
	}, nil
}

// Close implements Backend. Running subprocesses are owned by the ProcessManager.
func (c *Command) Close() error {
	return nil
}
