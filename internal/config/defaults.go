package config

// DefaultConfig returns the built-in configuration: a local Ollama, the
// stock tool server and sequential scheduling.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Type:     "ollama",
			Endpoint: "http://localhost:11434",
		},
		Models: ModelsConfig{
			Control: "codellama:instruct",
			Code:    "deepseek-coder",
		},
		Agents: map[string]AgentConfig{},
		Tools: ToolsConfig{
			BaseURL:        "http://127.0.0.1:8001",
			TimeoutSeconds: 30,
			Workspace:      true,
		},
		Scheduler: SchedulerConfig{
			Concurrency:         1,
			RecentMessages:      5,
			AgentTimeoutSeconds: 120,
		},
		ContextLog: ContextLogConfig{
			Path: ".goalrunner/context.db",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}
