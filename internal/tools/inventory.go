// Package tools reports the agent's tool inventory: the static built-in
// set, config-gated extras, and one entry per installed skill tool.
package tools

import (
	"github.com/basket/pocketclaw/internal/config"
	"github.com/basket/pocketclaw/internal/skills"
)

// BuiltinSource marks tools that ship with the daemon rather than a skill.
const BuiltinSource = "built-in"

// Spec describes one tool without instantiating it, suitable for
// dashboards and the bridge surface.
type Spec struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Source         string `json:"source"`
	ParametersJSON string `json:"parameters_json"`
}

// coreTools are always present while the daemon runs.
var coreTools = []Spec{
	{
		Name:           "shell",
		Description:    "Execute shell commands with security policy enforcement",
		ParametersJSON: `{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`,
	},
	{
		Name:           "file_read",
		Description:    "Read file contents with path validation",
		ParametersJSON: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
	},
	{
		Name:           "file_write",
		Description:    "Write content to files with path validation",
		ParametersJSON: `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`,
	},
	{
		Name:           "memory_store",
		Description:    "Store a key-value pair in the memory backend",
		ParametersJSON: `{"type":"object","properties":{"key":{"type":"string"},"content":{"type":"string"},"category":{"type":"string"}},"required":["key","content"]}`,
	},
	{
		Name:           "memory_recall",
		Description:    "Recall memories matching a keyword query",
		ParametersJSON: `{"type":"object","properties":{"query":{"type":"string"},"limit":{"type":"integer"}},"required":["query"]}`,
	},
	{
		Name:           "memory_forget",
		Description:    "Remove a memory entry by key",
		ParametersJSON: `{"type":"object","properties":{"key":{"type":"string"}},"required":["key"]}`,
	},
	{
		Name:           "schedule",
		Description:    "Schedule cron jobs and one-shot delayed tasks",
		ParametersJSON: `{"type":"object","properties":{"expression":{"type":"string"},"command":{"type":"string"}},"required":["expression","command"]}`,
	},
	{
		Name:           "git_operations",
		Description:    "Perform git operations in the workspace directory",
		ParametersJSON: `{"type":"object","properties":{"operation":{"type":"string"},"args":{"type":"array","items":{"type":"string"}}},"required":["operation"]}`,
	},
	{
		Name:           "screenshot",
		Description:    "Capture screenshots with security policy enforcement",
		ParametersJSON: `{"type":"object","properties":{"target":{"type":"string"}}}`,
	},
	{
		Name:           "image_info",
		Description:    "Extract metadata and dimensions from image files",
		ParametersJSON: `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
	},
}

// browserTools are reported only when browser automation is enabled.
var browserTools = []Spec{
	{
		Name:           "browser_open",
		Description:    "Open a URL in a headless or remote browser",
		ParametersJSON: `{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`,
	},
	{
		Name:           "browser",
		Description:    "Full browser automation (navigation, clicks, screenshots)",
		ParametersJSON: `{"type":"object","properties":{"action":{"type":"string"}},"required":["action"]}`,
	},
}

var httpTool = Spec{
	Name:           "http_request",
	Description:    "Make HTTP requests with domain allowlist enforcement",
	ParametersJSON: `{"type":"object","properties":{"method":{"type":"string"},"url":{"type":"string"}},"required":["url"]}`,
}

var composioTool = Spec{
	Name:           "composio",
	Description:    "Access Composio integrations for third-party APIs",
	ParametersJSON: `{"type":"object","properties":{"app":{"type":"string"},"action":{"type":"string"}},"required":["app","action"]}`,
}

var delegateTool = Spec{
	Name:           "delegate",
	Description:    "Delegate tasks to sub-agents with independent context",
	ParametersJSON: `{"type":"object","properties":{"task":{"type":"string"}},"required":["task"]}`,
}

// Inventory enumerates the available tools for the given configuration
// and installed skills. Built-ins come first, then config-gated extras,
// then skill tools with the skill name as their source.
func Inventory(cfg config.Config, installed []skills.Skill) []Spec {
	specs := make([]Spec, 0, len(coreTools)+len(installed))
	for _, t := range coreTools {
		specs = append(specs, builtin(t))
	}
	if cfg.Tools.BrowserEnabled {
		for _, t := range browserTools {
			specs = append(specs, builtin(t))
		}
	}
	if cfg.Tools.HTTPEnabled {
		specs = append(specs, builtin(httpTool))
	}
	if cfg.Tools.ComposioAPIKey != "" {
		specs = append(specs, builtin(composioTool))
	}
	if cfg.Tools.DelegateEnabled {
		specs = append(specs, builtin(delegateTool))
	}
	for _, skill := range installed {
		for _, tool := range skill.Tools {
			specs = append(specs, Spec{
				Name:           tool.Name,
				Description:    tool.Description,
				Source:         skill.Name,
				ParametersJSON: "{}",
			})
		}
	}
	return specs
}

func builtin(t Spec) Spec {
	t.Source = BuiltinSource
	return t
}
