// Package runner abstracts the streaming agent runners the bridge can
// drive. A runner turns a prompt into an ordered stream of protocol
// messages; the bridge consumes the stream one message at a time.
package runner

import (
	"context"

	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/protocol"
)

// RunConfig describes one agent run.
type RunConfig struct {
	// Prompt is the rendered prompt text for this run.
	Prompt string

	// WorkingDir is the workspace the agent operates in.
	WorkingDir string

	// ResumeSessionID resumes an existing runner session when non-empty.
	ResumeSessionID string

	// Model overrides the runner's default model when non-empty.
	Model string

	// DisallowedTools lists tool names the run may not use.
	DisallowedTools []string

	// SingleTurn restricts the run to one model turn.
	SingleTurn bool
}

// Runner produces a stream of protocol messages for a run. The returned
// channel is closed after the terminal result message. Implementations
// must emit messages in order and never after close.
type Runner interface {
	// Kind reports which runner flavor this is.
	Kind() models.RunnerKind

	// Run starts or resumes an agent run and streams its messages.
	Run(ctx context.Context, cfg RunConfig) (<-chan protocol.Message, error)

	// Formatter returns the presentation formatter for this runner's
	// tool vocabulary.
	Formatter() Formatter
}

// Classifier performs a single-turn call that maps a free-text request
// to exactly one classification label out of a fixed set given in the
// system prompt.
type Classifier interface {
	Classify(ctx context.Context, systemPrompt, requestText string) (string, error)
}
