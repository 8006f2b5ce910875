// Package procedure implements workflow routing for agent sessions: a
// catalog of named procedures (ordered subroutine sequences), a
// classifier-backed router that picks a procedure for a request, and an
// analyzer that tracks a session's position within its procedure.
package procedure

// Classification is one of the fixed request categories the router's
// classifier may return.
type Classification string

const (
	ClassQuestion      Classification = "question"
	ClassDocumentation Classification = "documentation"
	ClassTransient     Classification = "transient"
	ClassPlanning      Classification = "planning"
	ClassCode          Classification = "code"
	ClassDebugger      Classification = "debugger"
	ClassOrchestrator  Classification = "orchestrator"
)

// Classifications lists every valid classification label.
var Classifications = []Classification{
	ClassQuestion,
	ClassDocumentation,
	ClassTransient,
	ClassPlanning,
	ClassCode,
	ClassDebugger,
	ClassOrchestrator,
}

// Subroutine is one stage of a procedure.
type Subroutine struct {
	Name                   string   `yaml:"name" json:"name"`
	PromptReference        string   `yaml:"prompt" json:"prompt"`
	Description            string   `yaml:"description,omitempty" json:"description,omitempty"`
	SingleTurn             bool     `yaml:"single_turn,omitempty" json:"single_turn,omitempty"`
	SuppressThoughtPosting bool     `yaml:"suppress_thought_posting,omitempty" json:"suppress_thought_posting,omitempty"`
	RequiresApproval       bool     `yaml:"requires_approval,omitempty" json:"requires_approval,omitempty"`
	DisallowedTools        []string `yaml:"disallowed_tools,omitempty" json:"disallowed_tools,omitempty"`
}

// Procedure is a named, ordered sequence of subroutines.
type Procedure struct {
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Subroutines []Subroutine `yaml:"subroutines" json:"subroutines"`
}

// RoutingDecision is the outcome of classifying one request.
type RoutingDecision struct {
	Classification Classification
	Procedure      *Procedure
	Reasoning      string
}
