package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"
)

// TestExecuteCommand_BasicExecution verifies basic command execution
func TestExecuteCommand_BasicExecution(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "echo", "hello")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "hello") {
		t.Errorf("Expected stdout to contain 'hello', got: %s", stdout)
	}
	if len(stderr) > 0 {
		t.Errorf("Expected empty stderr, got: %s", stderr)
	}
}

// TestExecuteCommand_LargeOutput verifies no deadlock when output exceeds the pipe buffer
func TestExecuteCommand_LargeOutput(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// ~256KB on stdout and stderr, well above a 64KB pipe buffer
	script := `for i in $(seq 1 16384); do echo "line $i of output...."; echo "err $i" >&2; done`
	cmd := newCommand(ctx, "bash", "-c", script)

	start := time.Now()
	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Expected no error, got: %v (took %v)", err, duration)
	}
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	if len(lines) != 16384 {
		t.Errorf("Expected 16384 lines of output, got %d", len(lines))
	}
	if len(stderr) == 0 {
		t.Error("Expected stderr to be captured")
	}
	if duration > 5*time.Second {
		t.Errorf("Command took too long (%v), possible deadlock", duration)
	}
}

// TestExecuteCommand_StderrCapture verifies both stdout and stderr are captured
func TestExecuteCommand_StderrCapture(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "bash", "-c", "echo error >&2; echo ok")

	stdout, stderr, err := executeCommand(ctx, cmd, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(string(stdout), "ok") {
		t.Errorf("Expected stdout to contain 'ok', got: %s", stdout)
	}
	if !strings.Contains(string(stderr), "error") {
		t.Errorf("Expected stderr to contain 'error', got: %s", stderr)
	}
}

// TestExecuteCommand_ContextCancellation verifies the process group dies with the context
func TestExecuteCommand_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	// The child sleep holds the pipes open; only a group kill releases them
	cmd := newCommand(ctx, "bash", "-c", "sleep 30 & sleep 30; wait")

	start := time.Now()
	_, _, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("Expected error due to context cancellation, got nil")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, process group not killed", elapsed)
	}
}

// TestExecuteCommand_TracksWithProcessManager verifies tracking lasts exactly as long as the process
func TestExecuteCommand_TracksWithProcessManager(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		cmd := newCommand(ctx, "bash", "-c", "sleep 0.3")
		if _, _, err := executeCommand(ctx, cmd, pm); err != nil {
			t.Errorf("executeCommand() error = %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pm.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pm.Count() != 1 {
		t.Errorf("Expected 1 tracked process while running, got %d", pm.Count())
	}

	<-done
	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes after completion, got %d", pm.Count())
	}
}

// TestProcessManager_KillsProcessTree verifies process group signal propagation
func TestProcessManager_KillsProcessTree(t *testing.T) {
	pm := NewProcessManager()

	cmd := newCommand(context.Background(), "bash", "-c", "sleep 30 & wait")
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start process: %v", err)
	}
	parentPID := cmd.Process.Pid
	pm.Track(cmd)

	if pm.Count() != 1 {
		t.Errorf("Expected 1 tracked process, got %d", pm.Count())
	}

	// Give bash time to spawn the child
	time.Sleep(200 * time.Millisecond)

	if err := pm.KillAll(); err != nil {
		t.Fatalf("KillAll() error = %v", err)
	}

	err := cmd.Wait()
	pm.Untrack(cmd)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && !status.Signaled() {
			t.Errorf("Expected process to be signaled, got exit status: %v", status)
		}
	} else {
		t.Errorf("Expected *exec.ExitError, got %T: %v", err, err)
	}

	// pgrep exits 1 when no children remain
	output, err := exec.Command("pgrep", "-P", fmt.Sprintf("%d", parentPID)).CombinedOutput()
	if err == nil && len(bytes.TrimSpace(output)) > 0 {
		t.Errorf("Child processes still running after KillAll: %s", output)
	}

	if pm.Count() != 0 {
		t.Errorf("Expected 0 tracked processes after Untrack, got %d", pm.Count())
	}
}

// TestExecuteCommand_NonZeroExitCode verifies error handling and output capture on failure
func TestExecuteCommand_NonZeroExitCode(t *testing.T) {
	ctx := context.Background()
	cmd := newCommand(ctx, "bash", "-c", "echo test-output; exit 3")

	stdout, _, err := executeCommand(ctx, cmd, nil)
	if err == nil {
		t.Fatal("Expected error due to non-zero exit code, got nil")
	}
	if !strings.Contains(string(stdout), "test-output") {
		t.Errorf("Expected stdout to be captured despite error, got: %s", stdout)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected error to wrap *exec.ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("Expected exit code 3, got %d", exitErr.ExitCode())
	}
}
