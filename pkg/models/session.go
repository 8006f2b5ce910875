package models

import "time"

// SessionStatus tracks the lifecycle of an agent session.
type SessionStatus string

const (
	StatusActive   SessionStatus = "active"
	StatusComplete SessionStatus = "complete"
	StatusError    SessionStatus = "error"
)

// IsTerminal reports whether the status is a terminal state. A terminal
// session can still be revived by a follow-up prompt, which resets it to
// active.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

// RunnerKind identifies which agent runner flavor backs a session.
type RunnerKind string

const (
	RunnerClaude RunnerKind = "claude"
	RunnerGemini RunnerKind = "gemini"
)

// IssueMinimal is the immutable issue snapshot captured at session creation.
type IssueMinimal struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

// Workspace describes where a session's agent operates.
type Workspace struct {
	Path          string `json:"path"`
	IsGitWorktree bool   `json:"is_git_worktree"`
}

// SubroutineRecord captures one completed subroutine in a procedure run.
type SubroutineRecord struct {
	SubroutineName  string     `json:"subroutine_name"`
	CompletedAt     time.Time  `json:"completed_at"`
	RunnerSessionID string     `json:"runner_session_id,omitempty"`
	RunnerKind      RunnerKind `json:"runner_kind,omitempty"`
}

// ProcedureMetadata is the workflow cursor stored on a session while
// procedure routing is active. CurrentSubroutineIndex ranges over
// [0, len(subroutines)]; a value equal to the subroutine count means the
// procedure has run to completion.
type ProcedureMetadata struct {
	ProcedureName          string             `json:"procedure_name"`
	CurrentSubroutineIndex int                `json:"current_subroutine_index"`
	SubroutineHistory      []SubroutineRecord `json:"subroutine_history"`
}

// SessionMetadata is the open metadata bag attached to a session.
type SessionMetadata struct {
	Model          string             `json:"model,omitempty"`
	Tools          []string           `json:"tools,omitempty"`
	PermissionMode string             `json:"permission_mode,omitempty"`
	CostUSD        float64            `json:"cost_usd,omitempty"`
	Usage          map[string]int64   `json:"usage,omitempty"`
	Procedure      *ProcedureMetadata `json:"procedure,omitempty"`
}

// Session is one tracked agent conversation tied to a tracker issue.
// The tracker assigns SessionID; it is stable for the conversation's
// lifetime. RunnerSessionID is populated once the underlying runner
// reports initialization and is used to resume.
type Session struct {
	SessionID       string          `json:"session_id"`
	IssueID         string          `json:"issue_id"`
	Issue           IssueMinimal    `json:"issue"`
	Workspace       Workspace       `json:"workspace"`
	Status          SessionStatus   `json:"status"`
	RunnerKind      RunnerKind      `json:"runner_kind"`
	RunnerSessionID string          `json:"runner_session_id,omitempty"`
	Metadata        SessionMetadata `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the session. The entry log lives outside
// the session struct, so this copies only session-owned state.
func (s *Session) Clone() *Session {
	dup := *s
	if s.Metadata.Tools != nil {
		dup.Metadata.Tools = append([]string(nil), s.Metadata.Tools...)
	}
	if s.Metadata.Usage != nil {
		dup.Metadata.Usage = make(map[string]int64, len(s.Metadata.Usage))
		for k, v := range s.Metadata.Usage {
			dup.Metadata.Usage[k] = v
		}
	}
	if s.Metadata.Procedure != nil {
		proc := *s.Metadata.Procedure
		proc.SubroutineHistory = append([]SubroutineRecord(nil), s.Metadata.Procedure.SubroutineHistory...)
		dup.Metadata.Procedure = &proc
	}
	return &dup
}
