// Package skills loads, installs, and watches skill.yaml manifests in
// the workspace skills directory.
package skills

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// ManifestName is the file every skill directory must contain.
const ManifestName = "skill.yaml"

// maxManifestSize bounds manifest reads.
const maxManifestSize = 1 << 20

// Tool is one capability a skill exposes to the agent.
type Tool struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Kind        string `yaml:"kind" json:"kind"`
	Command     string `yaml:"command" json:"command"`
}

// Skill is a parsed, validated skill.yaml manifest.
type Skill struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Version     string   `yaml:"version" json:"version"`
	Author      string   `yaml:"author" json:"author"`
	Tags        []string `yaml:"tags" json:"tags"`
	Tools       []Tool   `yaml:"tools" json:"tools"`

	// Dir is the directory name the manifest was loaded from. Empty for
	// manifests parsed outside the skills tree.
	Dir string `yaml:"-" json:"-"`
}

// ToolNames returns the tool names in manifest order.
func (s Skill) ToolNames() []string {
	names := make([]string, 0, len(s.Tools))
	for _, t := range s.Tools {
		names = append(names, t.Name)
	}
	return names
}

const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "version", "description"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "pattern": "^[A-Za-z0-9][A-Za-z0-9._-]*$"},
    "description": {"type": "string"},
    "version": {"type": "string", "minLength": 1},
    "author": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "kind": {"type": "string"},
          "command": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// manifestSchema compiles the embedded schema once. The schema text is a
// compile-time constant, so a failure here is a programming error.
var manifestSchema = sync.OnceValue(func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("skills: unmarshal manifest schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("skill.schema.json", doc); err != nil {
		panic(fmt.Sprintf("skills: add manifest schema: %v", err))
	}
	return c.MustCompile("skill.schema.json")
})

// ParseManifest parses and validates a skill.yaml document.
func ParseManifest(data []byte) (Skill, error) {
	if len(data) > maxManifestSize {
		return Skill{}, fmt.Errorf("manifest too large: %d bytes", len(data))
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Skill{}, fmt.Errorf("parse %s: %w", ManifestName, err)
	}
	if doc == nil {
		return Skill{}, fmt.Errorf("empty %s", ManifestName)
	}

	// Round-trip through JSON so the validator sees json.Number values.
	raw, err := json.Marshal(doc)
	if err != nil {
		return Skill{}, fmt.Errorf("encode %s: %w", ManifestName, err)
	}
	value, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return Skill{}, fmt.Errorf("decode %s: %w", ManifestName, err)
	}
	if err := manifestSchema().Validate(value); err != nil {
		return Skill{}, fmt.Errorf("invalid %s: %w", ManifestName, err)
	}

	var skill Skill
	if err := yaml.Unmarshal(data, &skill); err != nil {
		return Skill{}, fmt.Errorf("parse %s: %w", ManifestName, err)
	}
	return skill, nil
}
