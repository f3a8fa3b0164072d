package backend

import (
	"context"
	"fmt"
)

// Backend is a reasoning backend: one prompt in, one text completion out.
type Backend interface {
	// Complete sends a prompt to the given model and returns its response.
	Complete(ctx context.Context, req Request) (Response, error)

	// Close releases any resources held by the backend.
	Close() error
}

// New creates a backend from configuration.
// This factory switches on cfg.Type and wraps the adapter with retry and
// circuit-breaker protection unless cfg.Retry.Disabled is set.
func New(cfg Config, pm *ProcessManager) (Backend, error) {
	var b Backend
	switch cfg.Type {
	case "", "ollama":
		b = NewOllama(cfg)
	case "command":
		cb, err := NewCommand(cfg, pm)
		if err != nil {
			return nil, err
		}
		b = cb
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}

	if cfg.Retry.Disabled {
		return b, nil
	}
	return NewResilient(b, cfg.Retry, NewCircuitBreakerRegistry()), nil
}
