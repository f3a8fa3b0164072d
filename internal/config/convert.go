package config

import (
	"time"

	"github.com/aristath/goalrunner/internal/agent"
	"github.com/aristath/goalrunner/internal/backend"
	"github.com/aristath/goalrunner/internal/scheduler"
	"github.com/aristath/goalrunner/internal/toolcall"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// BackendSettings converts the backend section into a backend.Config.
func (c *Config) BackendSettings(workDir string) backend.Config {
	retry := backend.DefaultRetryConfig()
	retry.Disabled = c.Backend.Retry.Disabled
	if ms := c.Backend.Retry.InitialIntervalMS; ms > 0 {
		retry.InitialInterval = time.Duration(ms) * time.Millisecond
	}
	if ms := c.Backend.Retry.MaxIntervalMS; ms > 0 {
		retry.MaxInterval = time.Duration(ms) * time.Millisecond
	}
	if s := c.Backend.Retry.MaxElapsedSeconds; s > 0 {
		retry.MaxElapsedTime = seconds(s)
	}

	return backend.Config{
		Type:     c.Backend.Type,
		Endpoint: c.Backend.Endpoint,
		Command:  c.Backend.Command,
		Args:     c.Backend.Args,
		WorkDir:  workDir,
		Timeout:  seconds(c.Backend.TimeoutSeconds),
		Retry:    retry,
	}
}

// Profiles builds the role table from the models section and per-role overrides.
func (c *Config) Profiles() map[scheduler.Role]agent.Profile {
	profiles := agent.DefaultProfiles(agent.Models{Control: c.Models.Control, Code: c.Models.Code})
	for name, override := range c.Agents {
		role, err := scheduler.ParseRole(name)
		if err != nil {
			continue // rejected by Validate
		}
		p := profiles[role]
		if override.Model != "" {
			p.Model = override.Model
		}
		if override.Prompt != "" {
			p.Template = override.Prompt
		}
		profiles[role] = p
	}
	return profiles
}

// ToolSettings converts the tools section into a toolcall.Config.
func (c *Config) ToolSettings() toolcall.Config {
	cfg := toolcall.Config{
		BaseURL:          c.Tools.BaseURL,
		Timeout:          seconds(c.Tools.TimeoutSeconds),
		WorkingDirectory: c.Tools.WorkingDirectory,
	}
	if len(c.Tools.Endpoints) > 0 {
		cfg.Endpoints = toolcall.DefaultEndpoints()
		for name, ep := range c.Tools.Endpoints {
			cfg.Endpoints[name] = toolcall.Endpoint{Method: ep.Method, Path: ep.Path}
		}
	}
	return cfg
}

// AgentTimeout is the per-invocation backend timeout.
func (c *Config) AgentTimeout() time.Duration {
	return seconds(c.Scheduler.AgentTimeoutSeconds)
}
