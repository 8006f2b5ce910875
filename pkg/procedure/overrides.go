package procedure

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/logging"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// workflowSchema validates external workflow override files before they
// are merged into the catalog. A malformed override must fail loudly at
// startup, not surface later as a broken procedure mid-session.
const workflowSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "procedures": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "subroutines"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "subroutines": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["name", "prompt"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "prompt": {"type": "string", "minLength": 1},
                "description": {"type": "string"},
                "single_turn": {"type": "boolean"},
                "suppress_thought_posting": {"type": "boolean"},
                "requires_approval": {"type": "boolean"},
                "disallowed_tools": {"type": "array", "items": {"type": "string"}}
              }
            }
          }
        }
      }
    },
    "classifications": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

// workflowFile is the parsed shape of one override file.
type workflowFile struct {
	Procedures      []Procedure       `yaml:"procedures"`
	Classifications map[string]string `yaml:"classifications"`
}

// LoadOverrides scans dir for *.yml/*.yaml workflow files, validates
// each against the workflow schema, and merges them into the catalog
// with override-wins semantics. A missing directory is not an error.
// Runs once at startup; the catalog is read-only afterwards.
func LoadOverrides(catalog *Catalog, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeWorkflowInvalid, "failed to scan workflows directory").
			WithDetail("dir", dir)
	}

	schema, err := jsonschema.CompileString("workflow.schema.json", workflowSchema)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to compile workflow schema")
	}

	logger := logging.NewLogger("workflows")

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		names = append(names, entry.Name())
	}
	// Deterministic merge order: later files win on name collisions.
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeWorkflowInvalid, "failed to read workflow file").
				WithDetail("path", path)
		}

		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return errors.Wrap(err, errors.ErrCodeWorkflowInvalid, "failed to parse workflow file").
				WithDetail("path", path)
		}
		if err := schema.Validate(doc); err != nil {
			return errors.Wrap(err, errors.ErrCodeWorkflowInvalid, "workflow file failed schema validation").
				WithDetail("path", path)
		}

		var wf workflowFile
		if err := yaml.Unmarshal(data, &wf); err != nil {
			return errors.Wrap(err, errors.ErrCodeWorkflowInvalid, "failed to decode workflow file").
				WithDetail("path", path)
		}

		for i := range wf.Procedures {
			proc := wf.Procedures[i]
			catalog.Register(&proc)
			logger.WithField("procedure", proc.Name).Info("Loaded workflow override")
		}
		for rawClass, procName := range wf.Classifications {
			class, ok := parseClassification(rawClass)
			if !ok {
				return errors.New(errors.ErrCodeWorkflowInvalid,
					fmt.Sprintf("unknown classification %q in workflow file", rawClass)).
					WithDetail("path", path)
			}
			catalog.MapClassification(class, procName)
			logger.WithField("classification", rawClass).
				WithField("procedure", procName).
				Info("Loaded classification override")
		}
	}

	// Every mapped classification must resolve to a known procedure.
	for _, class := range Classifications {
		procName, err := catalog.ProcedureForClassification(class)
		if err != nil {
			continue
		}
		if _, err := catalog.Get(procName); err != nil {
			return errors.New(errors.ErrCodeWorkflowInvalid,
				fmt.Sprintf("classification %q maps to unknown procedure %q", class, procName))
		}
	}

	return nil
}
