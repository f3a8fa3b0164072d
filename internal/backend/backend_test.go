package backend

import (
	"strings"
	"testing"
)

func TestFactory(t *testing.T) {
	pm := NewProcessManager()

	tests := []struct {
		name      string
		cfg       Config
		wantType  string
		wantErr   string
		resilient bool
	}{
		{name: "default is ollama", cfg: Config{}, resilient: true},
		{name: "ollama without retry", cfg: Config{Type: "ollama", Retry: RetryConfig{Disabled: true}}, wantType: "ollama"},
		{name: "command", cfg: Config{Type: "command", Command: "cat", Retry: RetryConfig{Disabled: true}}, wantType: "command"},
		{name: "command without executable", cfg: Config{Type: "command"}, wantErr: "requires a command"},
		{name: "unknown", cfg: Config{Type: "claude"}, wantErr: "unknown backend type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.cfg, pm)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("New() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer b.Close()

			switch b.(type) {
			case *Resilient:
				if !tt.resilient {
					t.Errorf("got *Resilient, want %s", tt.wantType)
				}
			case *Ollama:
				if tt.wantType != "ollama" {
					t.Errorf("got *Ollama, want %s", tt.wantType)
				}
			case *Command:
				if tt.wantType != "command" {
					t.Errorf("got *Command, want %s", tt.wantType)
				}
			default:
				t.Errorf("unexpected backend type %T", b)
			}
		})
	}
}

func TestErrorPermanent(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, true},
		{404, true},
		{408, false},
		{429, false},
		{500, false},
		{503, false},
		{1, false},
	}
	for _, tt := range tests {
		if got := (&Error{Status: tt.status}).Permanent(); got != tt.want {
			t.Errorf("Error{Status: %d}.Permanent() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
