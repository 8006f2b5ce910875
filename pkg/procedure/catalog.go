package procedure

import (
	"github.com/grovetools/bridge/errors"
)

// FallbackProcedureName is the procedure used when classification fails.
const FallbackProcedureName = "full-development"

// builtinProcedures is the built-in catalog. External overrides may
// replace entries by name at startup; the catalog is immutable afterwards.
func builtinProcedures() map[string]*Procedure {
	return map[string]*Procedure{
		"full-development": {
			Name:        "full-development",
			Description: "Standard implementation workflow for code changes",
			Subroutines: []Subroutine{
				{Name: "coding-activity", PromptReference: "builder", Description: "Implement the requested change"},
				{Name: "verification", PromptReference: "verifier", Description: "Run tests and verify the change"},
				{Name: "code-review", PromptReference: "reviewer", Description: "Self-review the change for defects"},
				{Name: "summarize", PromptReference: "summarizer", Description: "Summarize the outcome", SingleTurn: true, SuppressThoughtPosting: true},
			},
		},
		"answer-question": {
			Name:        "answer-question",
			Description: "Answer a question without modifying code",
			Subroutines: []Subroutine{
				{Name: "answer", PromptReference: "answerer", SingleTurn: true, DisallowedTools: []string{"Write", "Edit"}},
			},
		},
		"documentation-update": {
			Name:        "documentation-update",
			Description: "Edit documentation, markdown, or comments only",
			Subroutines: []Subroutine{
				{Name: "documentation-edit", PromptReference: "documenter", Description: "Apply the documentation change"},
				{Name: "summarize", PromptReference: "summarizer", SingleTurn: true, SuppressThoughtPosting: true},
			},
		},
		"transient-task": {
			Name:        "transient-task",
			Description: "Tool-only work with no codebase changes",
			Subroutines: []Subroutine{
				{Name: "transient", PromptReference: "transient", DisallowedTools: []string{"Write", "Edit"}},
			},
		},
		"planning-only": {
			Name:        "planning-only",
			Description: "Produce an implementation plan for unclear requirements",
			Subroutines: []Subroutine{
				{Name: "scoping", PromptReference: "scoper", Description: "Clarify requirements and draft a plan", DisallowedTools: []string{"Write", "Edit"}},
				{Name: "summarize", PromptReference: "summarizer", SingleTurn: true, SuppressThoughtPosting: true},
			},
		},
		"debugger-workflow": {
			Name:        "debugger-workflow",
			Description: "Reproduce first, then fix after explicit approval",
			Subroutines: []Subroutine{
				{Name: "reproduce-issue", PromptReference: "debugger", Description: "Reproduce the bug and identify the root cause", RequiresApproval: true},
				{Name: "apply-fix", PromptReference: "builder", Description: "Apply the approved fix"},
				{Name: "verification", PromptReference: "verifier", Description: "Verify the fix"},
				{Name: "summarize", PromptReference: "summarizer", SingleTurn: true, SuppressThoughtPosting: true},
			},
		},
		"orchestrator-workflow": {
			Name:        "orchestrator-workflow",
			Description: "Decompose into sub-issues and delegate to sub-agents",
			Subroutines: []Subroutine{
				{Name: "decompose", PromptReference: "orchestrator", Description: "Break the work into delegable sub-issues"},
				{Name: "delegate", PromptReference: "orchestrator", Description: "Drive sub-agent sessions and collect results"},
				{Name: "summarize", PromptReference: "summarizer", SingleTurn: true, SuppressThoughtPosting: true},
			},
		},
	}
}

// builtinClassificationMap maps each classification to a procedure name.
func builtinClassificationMap() map[Classification]string {
	return map[Classification]string{
		ClassQuestion:      "answer-question",
		ClassDocumentation: "documentation-update",
		ClassTransient:     "transient-task",
		ClassPlanning:      "planning-only",
		ClassCode:          "full-development",
		ClassDebugger:      "debugger-workflow",
		ClassOrchestrator:  "orchestrator-workflow",
	}
}

// Catalog holds the merged set of procedures and the classification
// mapping. Built once at startup; read-only afterwards.
type Catalog struct {
	procedures      map[string]*Procedure
	classifications map[Classification]string
}

// NewCatalog returns a catalog seeded with the built-in procedures.
func NewCatalog() *Catalog {
	return &Catalog{
		procedures:      builtinProcedures(),
		classifications: builtinClassificationMap(),
	}
}

// Get returns the procedure with the given name.
func (c *Catalog) Get(name string) (*Procedure, error) {
	proc, ok := c.procedures[name]
	if !ok {
		return nil, errors.ProcedureNotFound(name)
	}
	return proc, nil
}

// Register adds or replaces a procedure by name.
func (c *Catalog) Register(proc *Procedure) {
	c.procedures[proc.Name] = proc
}

// MapClassification overrides the procedure a classification routes to.
func (c *Catalog) MapClassification(class Classification, procedureName string) {
	c.classifications[class] = procedureName
}

// ProcedureForClassification resolves a classification to its procedure
// name. An unmapped classification is a catalog defect, not a routing
// fallback case.
func (c *Catalog) ProcedureForClassification(class Classification) (string, error) {
	name, ok := c.classifications[class]
	if !ok {
		return "", errors.ProcedureNotFound(string(class))
	}
	return name, nil
}

// Names returns all registered procedure names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.procedures))
	for name := range c.procedures {
		names = append(names, name)
	}
	return names
}
