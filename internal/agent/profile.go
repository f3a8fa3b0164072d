package agent

import (
	"github.com/aristath/goalrunner/internal/scheduler"
)

// Default models, matching a stock Ollama install.
const (
	DefaultControlModel = "codellama:instruct"
	DefaultCodeModel    = "deepseek-coder"
)

// Profile binds a role to its prompt template and backend model.
type Profile struct {
	Role       scheduler.Role
	Model      string
	Template   string // text/template source
	OutputType string // Stored as output "type"
	UsesTools  bool   // Scan responses for tool calls
}

// Models selects the two backend models profiles are built from.
type Models struct {
	Control string // Planning, design and context
	Code    string // Implementation
}

// DefaultProfiles returns the role table. Empty model names fall back to
// DefaultControlModel and DefaultCodeModel.
func DefaultProfiles(models Models) map[scheduler.Role]Profile {
	if models.Control == "" {
		models.Control = DefaultControlModel
	}
	if models.Code == "" {
		models.Code = DefaultCodeModel
	}

	return map[scheduler.Role]Profile{
		scheduler.RolePlanner: {
			Role:       scheduler.RolePlanner,
			Model:      models.Control,
			Template:   plannerTemplate,
			OutputType: "plan",
		},
		scheduler.RoleDesigner: {
			Role:       scheduler.RoleDesigner,
			Model:      models.Control,
			Template:   designerTemplate,
			OutputType: "design_spec",
		},
		scheduler.RoleCoder: {
			Role:       scheduler.RoleCoder,
			Model:      models.Code,
			Template:   coderTemplate,
			OutputType: "implementation",
			UsesTools:  true,
		},
		scheduler.RoleContext: {
			Role:       scheduler.RoleContext,
			Model:      models.Control,
			Template:   contextTemplate,
			OutputType: "context",
		},
	}
}
