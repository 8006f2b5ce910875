package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/grovetools/bridge/pkg/protocol"
)

// RunnerClassifier implements Classifier on top of a streaming Runner
// by executing a single-turn run and reading the terminal result text.
type RunnerClassifier struct {
	runner Runner
	model  string
}

// NewRunnerClassifier wraps a runner as a single-turn classifier.
// model overrides the runner's default model when non-empty.
func NewRunnerClassifier(r Runner, model string) *RunnerClassifier {
	return &RunnerClassifier{runner: r, model: model}
}

// Classify runs one classification turn and returns the trimmed,
// lowercased result text.
func (c *RunnerClassifier) Classify(ctx context.Context, systemPrompt, requestText string) (string, error) {
	prompt := systemPrompt + "\n\nRequest:\n" + requestText
	stream, err := c.runner.Run(ctx, RunConfig{
		Prompt:     prompt,
		Model:      c.model,
		SingleTurn: true,
	})
	if err != nil {
		return "", err
	}

	for msg := range stream {
		if msg.Type != protocol.MessageResult || msg.Result == nil {
			continue
		}
		if msg.Result.IsError {
			return "", fmt.Errorf("classification run failed: %s", msg.Result.Text)
		}
		return strings.ToLower(strings.TrimSpace(msg.Result.Text)), nil
	}
	return "", fmt.Errorf("classification stream ended without a result")
}
