package procedure

import (
	"testing"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *models.Session {
	return &models.Session{
		SessionID:  "sess-1",
		RunnerKind: models.RunnerClaude,
		Status:     models.StatusActive,
	}
}

func TestInitializeResetsMetadata(t *testing.T) {
	catalog := NewCatalog()
	analyzer := NewAnalyzer(catalog)
	session := newTestSession()

	// Pre-existing non-empty state must be fully replaced, not merged.
	session.Metadata.Procedure = &models.ProcedureMetadata{
		ProcedureName:          "debugger-workflow",
		CurrentSubroutineIndex: 2,
		SubroutineHistory: []models.SubroutineRecord{
			{SubroutineName: "reproduce-issue"},
		},
	}

	proc, err := catalog.Get("full-development")
	require.NoError(t, err)
	analyzer.Initialize(session, proc)

	meta := session.Metadata.Procedure
	require.NotNil(t, meta)
	assert.Equal(t, "full-development", meta.ProcedureName)
	assert.Equal(t, 0, meta.CurrentSubroutineIndex)
	assert.Empty(t, meta.SubroutineHistory)
}

func TestCursorWalksProcedureExactly(t *testing.T) {
	catalog := NewCatalog()
	analyzer := NewAnalyzer(catalog)
	session := newTestSession()

	proc, err := catalog.Get("full-development")
	require.NoError(t, err)
	analyzer.Initialize(session, proc)

	n := len(proc.Subroutines)
	require.Greater(t, n, 1)

	// GetNext succeeds n-1 times, then returns nil on the nth call.
	for i := 0; i < n-1; i++ {
		next := analyzer.GetNext(session)
		require.NotNil(t, next, "expected next subroutine at index %d", i)
		assert.Equal(t, proc.Subroutines[i+1].Name, next.Name)
		require.NoError(t, analyzer.Advance(session, "run-1"))
	}
	assert.Nil(t, analyzer.GetNext(session))
	assert.True(t, analyzer.IsComplete(session))
}

func TestAdvanceRecordsHistory(t *testing.T) {
	catalog := NewCatalog()
	analyzer := NewAnalyzer(catalog)
	session := newTestSession()
	session.RunnerKind = models.RunnerGemini

	proc, err := catalog.Get("documentation-update")
	require.NoError(t, err)
	analyzer.Initialize(session, proc)

	require.NoError(t, analyzer.Advance(session, "run-42"))

	meta := session.Metadata.Procedure
	require.Len(t, meta.SubroutineHistory, 1)
	record := meta.SubroutineHistory[0]
	assert.Equal(t, "documentation-edit", record.SubroutineName)
	assert.Equal(t, "run-42", record.RunnerSessionID)
	assert.Equal(t, models.RunnerGemini, record.RunnerKind)
	assert.False(t, record.CompletedAt.IsZero())
	assert.Equal(t, 1, meta.CurrentSubroutineIndex)
}

func TestAdvancePastEndRecordsNothing(t *testing.T) {
	catalog := NewCatalog()
	analyzer := NewAnalyzer(catalog)
	session := newTestSession()

	proc, err := catalog.Get("answer-question")
	require.NoError(t, err)
	analyzer.Initialize(session, proc)

	// One subroutine: first advance records history, second has no
	// current subroutine left to record.
	require.NoError(t, analyzer.Advance(session, "run-1"))
	require.NoError(t, analyzer.Advance(session, "run-1"))
	assert.Len(t, session.Metadata.Procedure.SubroutineHistory, 1)
	assert.Equal(t, 2, session.Metadata.Procedure.CurrentSubroutineIndex)
}

func TestAdvanceWithoutMetadataFails(t *testing.T) {
	analyzer := NewAnalyzer(NewCatalog())
	session := newTestSession()

	err := analyzer.Advance(session, "run-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeProcedureUninitialized))
	assert.Contains(t, err.Error(), "no procedure metadata")
}

func TestGetCurrentOutOfBounds(t *testing.T) {
	catalog := NewCatalog()
	analyzer := NewAnalyzer(catalog)
	session := newTestSession()

	assert.Nil(t, analyzer.GetCurrent(session))

	proc, err := catalog.Get("answer-question")
	require.NoError(t, err)
	analyzer.Initialize(session, proc)
	assert.Equal(t, "answer", analyzer.GetCurrent(session).Name)

	require.NoError(t, analyzer.Advance(session, "run-1"))
	assert.Nil(t, analyzer.GetCurrent(session), "index == length means no current subroutine")
}
