package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/goalrunner/internal/scheduler"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		global  string
		project string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Backend.Type != "ollama" || cfg.Models.Control != "codellama:instruct" || cfg.Models.Code != "deepseek-coder" {
					t.Errorf("unexpected defaults: %+v", cfg)
				}
				if cfg.Scheduler.Concurrency != 1 || cfg.Tools.TimeoutSeconds != 30 {
					t.Errorf("unexpected scheduler/tools defaults: %+v / %+v", cfg.Scheduler, cfg.Tools)
				}
			},
		},
		{
			name:   "Global only - overrides one field, keeps the rest",
			global: `{"models": {"code": "qwen2.5-coder"}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Models.Code != "qwen2.5-coder" {
					t.Errorf("code model = %q", cfg.Models.Code)
				}
				if cfg.Models.Control != "codellama:instruct" {
					t.Errorf("control model lost: %q", cfg.Models.Control)
				}
			},
		},
		{
			name:    "Both with merge - global adds, project overrides",
			global:  `{"agents": {"designer": {"model": "llama3"}, "coder": {"model": "model-x"}}}`,
			project: `{"agents": {"coder": {"model": "model-y"}}, "scheduler": {"concurrency": 4}}`,
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.Agents) != 2 {
					t.Errorf("agents = %+v", cfg.Agents)
				}
				if cfg.Agents["designer"].Model != "llama3" {
					t.Errorf("designer = %+v", cfg.Agents["designer"])
				}
				if cfg.Agents["coder"].Model != "model-y" {
					t.Errorf("project should win, coder = %+v", cfg.Agents["coder"])
				}
				if cfg.Scheduler.Concurrency != 4 || cfg.Scheduler.RecentMessages != 5 {
					t.Errorf("scheduler = %+v", cfg.Scheduler)
				}
			},
		},
		{
			name:    "Command backend",
			project: `{"backend": {"type": "command", "command": "ollama", "args": ["run", "{model}"]}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Backend.Type != "command" || strings.Join(cfg.Backend.Args, " ") != "run {model}" {
					t.Errorf("backend = %+v", cfg.Backend)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			globalPath := filepath.Join(tmpDir, "global", "config.json")
			projectPath := filepath.Join(tmpDir, "project", "config.json")

			if tt.global != "" {
				writeFile(t, globalPath, tt.global)
			}
			if tt.project != "" {
				writeFile(t, projectPath, tt.project)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		project string
		wantErr string
	}{
		{"malformed JSON", `{"backend": {`, "parsing"},
		{"unknown backend", `{"backend": {"type": "carrier-pigeon"}}`, "unknown backend type"},
		{"command without command", `{"backend": {"type": "command"}}`, "requires a command"},
		{"unknown agent role", `{"agents": {"reviewer": {"model": "x"}}}`, "unknown agent role"},
		{"negative concurrency", `{"scheduler": {"concurrency": -1}}`, "concurrency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, tt.project)

			_, err := Load("", path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFiles(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "nope.json"), filepath.Join(tmpDir, "also-nope.json"))
	if err != nil {
		t.Fatalf("missing files should not be an error: %v", err)
	}
	if cfg.Backend.Endpoint != "http://localhost:11434" {
		t.Errorf("expected defaults, got %+v", cfg.Backend)
	}
}

func TestProfiles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models.Code = "starcoder2"
	cfg.Agents["designer"] = AgentConfig{Model: "llama3", Prompt: "design {{.Description}}"}

	profiles := cfg.Profiles()
	if profiles[scheduler.RoleCoder].Model != "starcoder2" {
		t.Errorf("coder model = %q", profiles[scheduler.RoleCoder].Model)
	}
	if !profiles[scheduler.RoleCoder].UsesTools {
		t.Error("coder should use tools")
	}
	d := profiles[scheduler.RoleDesigner]
	if d.Model != "llama3" || d.Template != "design {{.Description}}" {
		t.Errorf("designer = %+v", d)
	}
	if profiles[scheduler.RolePlanner].Model != "codellama:instruct" {
		t.Errorf("planner model = %q", profiles[scheduler.RolePlanner].Model)
	}
}

func TestBackendSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.TimeoutSeconds = 90
	cfg.Backend.Retry = RetryConfig{InitialIntervalMS: 250, MaxElapsedSeconds: 10}

	b := cfg.BackendSettings("/work")
	if b.Timeout != 90*time.Second || b.WorkDir != "/work" || b.Endpoint != "http://localhost:11434" {
		t.Errorf("backend = %+v", b)
	}
	if b.Retry.InitialInterval != 250*time.Millisecond || b.Retry.MaxElapsedTime != 10*time.Second {
		t.Errorf("retry = %+v", b.Retry)
	}
	if b.Retry.MaxInterval != 10*time.Second {
		t.Errorf("unset retry fields should keep defaults, got %+v", b.Retry)
	}
}

func TestToolSettings(t *testing.T) {
	cfg := DefaultConfig()
	tc := cfg.ToolSettings()
	if tc.Endpoints != nil {
		t.Error("no endpoint overrides should leave the dispatcher defaults")
	}
	if tc.Timeout != 30*time.Second || tc.BaseURL != "http://127.0.0.1:8001" {
		t.Errorf("tools = %+v", tc)
	}

	cfg.Tools.Endpoints = map[string]EndpointConfig{"git_status": {Method: "GET", Path: "/v1/tools/git-status"}}
	tc = cfg.ToolSettings()
	if tc.Endpoints["git_status"].Path != "/v1/tools/git-status" {
		t.Errorf("custom endpoint missing: %+v", tc.Endpoints)
	}
	if _, ok := tc.Endpoints["write_file"]; !ok {
		t.Error("custom endpoints should extend the default table")
	}
}
