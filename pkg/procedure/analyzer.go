package procedure

import (
	"time"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/pkg/models"
)

// Analyzer is the state cursor over a session's procedure metadata. It
// answers what subroutine is active, what comes next, whether the
// procedure is done, and advances the cursor.
type Analyzer struct {
	catalog *Catalog
}

// NewAnalyzer builds an analyzer over the given catalog.
func NewAnalyzer(catalog *Catalog) *Analyzer {
	return &Analyzer{catalog: catalog}
}

// Initialize resets the session's procedure metadata to the start of
// proc. Called on every new user-initiated turn, including follow-up
// prompts on an existing session: each new request is re-routed fresh
// rather than continuing a stale procedure.
func (a *Analyzer) Initialize(session *models.Session, proc *Procedure) {
	session.Metadata.Procedure = &models.ProcedureMetadata{
		ProcedureName:          proc.Name,
		CurrentSubroutineIndex: 0,
		SubroutineHistory:      []models.SubroutineRecord{},
	}
}

// GetCurrent returns the active subroutine, or nil if the session has
// no procedure metadata or the cursor is out of bounds.
func (a *Analyzer) GetCurrent(session *models.Session) *Subroutine {
	meta := session.Metadata.Procedure
	if meta == nil {
		return nil
	}
	proc, err := a.catalog.Get(meta.ProcedureName)
	if err != nil {
		return nil
	}
	idx := meta.CurrentSubroutineIndex
	if idx < 0 || idx >= len(proc.Subroutines) {
		return nil
	}
	return &proc.Subroutines[idx]
}

// GetNext returns the subroutine after the current one, or nil if the
// session has no procedure metadata or the procedure is exhausted.
func (a *Analyzer) GetNext(session *models.Session) *Subroutine {
	meta := session.Metadata.Procedure
	if meta == nil {
		return nil
	}
	proc, err := a.catalog.Get(meta.ProcedureName)
	if err != nil {
		return nil
	}
	next := meta.CurrentSubroutineIndex + 1
	if next >= len(proc.Subroutines) {
		return nil
	}
	return &proc.Subroutines[next]
}

// Advance records completion of the current subroutine and moves the
// cursor forward. runnerSessionID is the runner session that completed
// the subroutine, tagged with the session's runner flavor. Advancing a
// session with no procedure metadata is a sequencing bug in the caller
// and fails immediately.
func (a *Analyzer) Advance(session *models.Session, runnerSessionID string) error {
	meta := session.Metadata.Procedure
	if meta == nil {
		return errors.ProcedureUninitialized(session.SessionID)
	}

	if current := a.GetCurrent(session); current != nil {
		meta.SubroutineHistory = append(meta.SubroutineHistory, models.SubroutineRecord{
			SubroutineName:  current.Name,
			CompletedAt:     time.Now(),
			RunnerSessionID: runnerSessionID,
			RunnerKind:      session.RunnerKind,
		})
	}

	meta.CurrentSubroutineIndex++
	return nil
}

// IsComplete reports whether the session's procedure has no further
// subroutines.
func (a *Analyzer) IsComplete(session *models.Session) bool {
	return a.GetNext(session) == nil
}
