package backend

import (
	"errors"
	"fmt"
	"time"
)

// Request is one completion request.
type Request struct {
	Model  string
	Prompt string
}

// Response is the text produced by a backend.
type Response struct {
	Content  string
	Model    string
	Duration time.Duration
}

// Config defines the configuration for a backend.
type Config struct {
	Type     string        // "ollama" (default) or "command"
	Endpoint string        // Ollama base URL
	Command  string        // Executable for the command backend
	Args     []string      // Arguments; "{model}" is replaced by the request model
	WorkDir  string        // Working directory for the command backend
	Timeout  time.Duration // Per-request timeout, 0 means none beyond the caller's context
	Retry    RetryConfig
}

var (
	// ErrUnavailable marks a backend that could not be reached at all.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrBackend marks a backend that answered with an error.
	ErrBackend = errors.New("backend error")
)

// Error is a non-success answer from a backend. Status is the HTTP status
// for HTTP backends and the exit code for command backends.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error { return ErrBackend }

// Permanent reports whether retrying the same request cannot succeed.
func (e *Error) Permanent() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 408 && e.Status != 429
}
