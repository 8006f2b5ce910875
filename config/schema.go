package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the base JSON Schema for the bridge
// configuration. It reflects the Config struct from types.go but
// excludes the 'Extensions' field, which holds free-form component
// sections.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		// Extension sections are free-form, so the embedded schema keeps
		// additionalProperties open at the top level only.
		AllowAdditionalProperties: true,
		// Expand struct references instead of using $ref for cleaner base schema.
		ExpandedStruct: true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
	}

	// A temporary struct that omits the Extensions field so it's not
	// included in the base schema.
	type BaseConfig struct {
		Version      string             `yaml:"version,omitempty" jsonschema:"description=Configuration format version"`
		Settings     Settings           `yaml:"settings,omitempty" jsonschema:"description=Global bridge settings"`
		Repositories []RepositoryConfig `yaml:"repositories,omitempty" jsonschema:"description=Repositories the bridge manages sessions for"`
	}

	schema := r.Reflect(&BaseConfig{})
	schema.Title = "Bridge Configuration"
	schema.Description = "Base schema for bridge.yml properties."
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(schema, "", "  ")
}
