package procedure

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClassifier returns a canned label or error.
type stubClassifier struct {
	label string
	err   error
	calls int
}

func (s *stubClassifier) Classify(_ context.Context, _, _ string) (string, error) {
	s.calls++
	return s.label, s.err
}

func TestDetermineRoutine(t *testing.T) {
	tests := []struct {
		label         string
		wantProcedure string
	}{
		{"question", "answer-question"},
		{"documentation", "documentation-update"},
		{"transient", "transient-task"},
		{"planning", "planning-only"},
		{"code", "full-development"},
		{"debugger", "debugger-workflow"},
		{"orchestrator", "orchestrator-workflow"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			router := NewRouter(&stubClassifier{label: tt.label}, NewCatalog())
			decision := router.DetermineRoutine(context.Background(), "Fix the login issue")
			require.NotNil(t, decision.Procedure)
			assert.Equal(t, Classification(tt.label), decision.Classification)
			assert.Equal(t, tt.wantProcedure, decision.Procedure.Name)
		})
	}
}

func TestDetermineRoutineFallsBackOnError(t *testing.T) {
	router := NewRouter(&stubClassifier{err: fmt.Errorf("runner crashed")}, NewCatalog())

	decision := router.DetermineRoutine(context.Background(), "anything")
	require.NotNil(t, decision.Procedure)
	assert.Equal(t, ClassCode, decision.Classification)
	assert.Equal(t, FallbackProcedureName, decision.Procedure.Name)
	assert.Contains(t, decision.Reasoning, "runner crashed")
}

func TestDetermineRoutineFallsBackOnUnknownLabel(t *testing.T) {
	router := NewRouter(&stubClassifier{label: "banana"}, NewCatalog())

	decision := router.DetermineRoutine(context.Background(), "anything")
	assert.Equal(t, ClassCode, decision.Classification)
	assert.Equal(t, FallbackProcedureName, decision.Procedure.Name)
}

func TestDetermineRoutineFallsBackOnCatalogMismatch(t *testing.T) {
	catalog := NewCatalog()
	// Point a classification at a procedure that does not exist. The
	// lookup failure is an internal-consistency error, recovered by the
	// router's fallback like any other classification failure.
	catalog.MapClassification(ClassQuestion, "no-such-procedure")

	router := NewRouter(&stubClassifier{label: "question"}, catalog)
	decision := router.DetermineRoutine(context.Background(), "How does X work?")
	assert.Equal(t, ClassCode, decision.Classification)
	assert.Equal(t, FallbackProcedureName, decision.Procedure.Name)
}

func TestFullDevelopmentShape(t *testing.T) {
	catalog := NewCatalog()
	proc, err := catalog.Get("full-development")
	require.NoError(t, err)

	require.NotEmpty(t, proc.Subroutines)
	first := proc.Subroutines[0]
	assert.Equal(t, "coding-activity", first.Name)
	assert.False(t, first.SuppressThoughtPosting)

	last := proc.Subroutines[len(proc.Subroutines)-1]
	assert.True(t, last.SuppressThoughtPosting)
	assert.True(t, last.SingleTurn)
}
