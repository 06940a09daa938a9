package bridge

import (
	"github.com/basket/pocketclaw/internal/tools"
)

// ToolSpec describes one tool the agent can call. Source is "built-in"
// or the providing skill's name; ParametersJSON is a JSON schema object.
type ToolSpec struct {
	Name           string
	Description    string
	Source         string
	ParametersJSON string
}

// ListTools returns the running daemon's tool inventory: the core tools,
// the config-gated extras, and one entry per installed skill tool.
func ListTools() ([]ToolSpec, error) {
	return guardErr(func() ([]ToolSpec, error) {
		cfg, err := rt().ConfigSnapshot()
		if err != nil {
			return nil, err
		}
		loader, _, err := rt().Skills()
		if err != nil {
			return nil, err
		}
		installed, err := loader.List()
		if err != nil {
			return nil, err
		}
		specs := tools.Inventory(cfg, installed)
		out := make([]ToolSpec, 0, len(specs))
		for _, s := range specs {
			out = append(out, ToolSpec{
				Name:           s.Name,
				Description:    s.Description,
				Source:         s.Source,
				ParametersJSON: s.ParametersJSON,
			})
		}
		return out, nil
	})
}
