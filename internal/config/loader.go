package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aristath/goalrunner/internal/scheduler"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.goalrunner/config.json
// Project: .goalrunner/config.json (relative to cwd)
func DefaultPaths() (global, project string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".goalrunner", "config.json"), filepath.Join(".goalrunner", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*Config, error) {
	global, project, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(global, project)
}

// mergeConfigFile overlays a JSON config file onto base. Sections and fields
// absent from the file keep their current values; agents and endpoints merge
// by key. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the runtime cannot honour.
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "", "ollama":
	case "command":
		if c.Backend.Command == "" {
			return fmt.Errorf("backend type %q requires a command", c.Backend.Type)
		}
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}

	for name := range c.Agents {
		if _, err := scheduler.ParseRole(name); err != nil {
			return fmt.Errorf("agents: %w", err)
		}
	}

	if c.Scheduler.Concurrency < 0 {
		return fmt.Errorf("scheduler concurrency must not be negative, got %d", c.Scheduler.Concurrency)
	}
	if c.Scheduler.RetryAttempts < 0 {
		return fmt.Errorf("scheduler retry_attempts must not be negative, got %d", c.Scheduler.RetryAttempts)
	}
	return nil
}
