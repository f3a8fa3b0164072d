package config

// BackendConfig selects and configures the reasoning backend.
type BackendConfig struct {
	Type           string      `json:"type"`                      // "ollama" or "command"
	Endpoint       string      `json:"endpoint,omitempty"`        // Ollama base URL
	Command        string      `json:"command,omitempty"`         // CLI for the command backend
	Args           []string    `json:"args,omitempty"`            // "{model}" is replaced per request
	TimeoutSeconds int         `json:"timeout_seconds,omitempty"` // Per-request, 0 = agent timeout only
	Retry          RetryConfig `json:"retry"`
}

// RetryConfig tunes backend retries and circuit breaking.
type RetryConfig struct {
	Disabled          bool `json:"disabled,omitempty"`
	InitialIntervalMS int  `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS     int  `json:"max_interval_ms,omitempty"`
	MaxElapsedSeconds int  `json:"max_elapsed_seconds,omitempty"`
}

// ModelsConfig names the two models roles are assigned from.
type ModelsConfig struct {
	Control string `json:"control"` // Planner, designer, context
	Code    string `json:"code"`    // Coder
}

// AgentConfig overrides one role's model or prompt template.
type AgentConfig struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt,omitempty"` // text/template source
}

// EndpointConfig routes a tool to a tool server path.
type EndpointConfig struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// ToolsConfig configures tool dispatch.
type ToolsConfig struct {
	BaseURL          string                    `json:"base_url"`
	TimeoutSeconds   int                       `json:"timeout_seconds"`
	WorkingDirectory string                    `json:"working_directory,omitempty"`
	Endpoints        map[string]EndpointConfig `json:"endpoints,omitempty"`
	Workspace        bool                      `json:"workspace"` // Register read_file/list_files in-process
}

// SchedulerConfig configures the scheduler loop.
type SchedulerConfig struct {
	Concurrency         int `json:"concurrency"`
	RecentMessages      int `json:"recent_messages"`
	RetryAttempts       int `json:"retry_attempts,omitempty"` // 0 = a task failure aborts the session
	AgentTimeoutSeconds int `json:"agent_timeout_seconds"`
}

// ContextLogConfig locates the context log database. An empty path keeps it in memory.
type ContextLogConfig struct {
	Path string `json:"path"`
}

// ServerConfig configures the HTTP status API.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// Config is the top-level configuration.
type Config struct {
	Backend    BackendConfig          `json:"backend"`
	Models     ModelsConfig           `json:"models"`
	Agents     map[string]AgentConfig `json:"agents"`
	Tools      ToolsConfig            `json:"tools"`
	Scheduler  SchedulerConfig        `json:"scheduler"`
	ContextLog ContextLogConfig       `json:"context_log"`
	Server     ServerConfig           `json:"server"`
}
