// Package session implements the agent session lifecycle engine: the
// session registry, streaming message translation into tracker
// activities, procedure advancement with approval gates, and
// child-to-parent delegation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/logging"
	"github.com/grovetools/bridge/pkg/approval"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/procedure"
	"github.com/grovetools/bridge/pkg/runner"
	"github.com/grovetools/bridge/pkg/tracker"
	"github.com/sirupsen/logrus"
)

// Transition notifies the orchestrating layer that a session advanced
// to its next subroutine and needs a fresh agent run.
type Transition struct {
	SessionID string
	Session   *models.Session
}

// ResumeParentFunc resumes a parent session with a prompt built from a
// completed child's result.
type ResumeParentFunc func(ctx context.Context, parentID, prompt, childID string) error

// toolCall remembers an assistant-side tool invocation until its result
// arrives.
type toolCall struct {
	name  string
	input string
}

// Config wires a Manager's collaborators.
type Config struct {
	Tracker   tracker.IssueTracker
	Analyzer  *procedure.Analyzer
	Approvals *approval.Broker

	// BaseURL is the externally reachable server address used to build
	// approval links.
	BaseURL string

	// ResumeParent is invoked when a child session completes. Nil
	// disables delegation.
	ResumeParent ResumeParentFunc

	// TransitionBuffer sizes the subroutine transition channel.
	TransitionBuffer int
}

// Manager owns the session registry and entry log. All session state is
// reached through its methods; the maps are never exposed.
type Manager struct {
	mu sync.Mutex

	sessions map[string]*models.Session
	entries  map[string][]*models.SessionEntry

	// Per-session auxiliary state, keyed by session id.
	activeTasks      map[string]string   // open Task tool-use id
	toolCalls        map[string]toolCall // tool-use id -> recorded call
	statusActivities map[string]string   // ephemeral compacting activity id
	runners          map[string]runner.Runner
	parents          map[string]string // child session id -> parent session id

	tracker      tracker.IssueTracker
	analyzer     *procedure.Analyzer
	approvals    *approval.Broker
	baseURL      string
	resumeParent ResumeParentFunc
	transitions  chan Transition
	logger       *logrus.Entry
}

// NewManager builds a session manager.
func NewManager(cfg Config) *Manager {
	buffer := cfg.TransitionBuffer
	if buffer <= 0 {
		buffer = 16
	}
	return &Manager{
		sessions:         make(map[string]*models.Session),
		entries:          make(map[string][]*models.SessionEntry),
		activeTasks:      make(map[string]string),
		toolCalls:        make(map[string]toolCall),
		statusActivities: make(map[string]string),
		runners:          make(map[string]runner.Runner),
		parents:          make(map[string]string),
		tracker:          cfg.Tracker,
		analyzer:         cfg.Analyzer,
		approvals:        cfg.Approvals,
		baseURL:          cfg.BaseURL,
		resumeParent:     cfg.ResumeParent,
		transitions:      make(chan Transition, buffer),
		logger:           logging.NewLogger("session"),
	}
}

// CreateSession registers a new active session with an empty entry log.
// Deduplication is the caller's responsibility.
func (m *Manager) CreateSession(sessionID, issueID string, issue models.IssueMinimal, workspace models.Workspace, kind models.RunnerKind) *models.Session {
	now := time.Now()
	session := &models.Session{
		SessionID:  sessionID,
		IssueID:    issueID,
		Issue:      issue,
		Workspace:  workspace,
		Status:     models.StatusActive,
		RunnerKind: kind,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	m.sessions[sessionID] = session
	m.entries[sessionID] = []*models.SessionEntry{}
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"issue":   issueID,
	}).Info("Tracking session")
	return session
}

// AttachRunner associates a live runner handle with a session. The
// handle is never serialized; it is recreated on resume.
func (m *Manager) AttachRunner(sessionID string, r runner.Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.logger.WithField("session", sessionID).Warn("No session to attach runner to")
		return
	}
	m.runners[sessionID] = r
	session.RunnerKind = r.Kind()
	session.UpdatedAt = time.Now()
}

// Runner returns the live runner handle for a session, if any.
func (m *Manager) Runner(sessionID string) (runner.Runner, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runners[sessionID]
	return r, ok
}

// RegisterChild records a parent/child delegation link.
func (m *Manager) RegisterChild(childID, parentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents[childID] = parentID
}

// ParentOf returns the parent session id for a child, if registered.
func (m *Manager) ParentOf(childID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	parentID, ok := m.parents[childID]
	return parentID, ok
}

// Transitions exposes the subroutine transition stream consumed by the
// orchestrating loop.
func (m *Manager) Transitions() <-chan Transition {
	return m.transitions
}

// Get returns a session by id.
func (m *Manager) Get(sessionID string) (*models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// Snapshot returns a deep copy of a session taken under the registry
// lock. Callers that serialize session state concurrently with live
// message handling must use snapshots, never the live pointers.
func (m *Manager) Snapshot(sessionID string) (*models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// SnapshotAll returns deep copies of every tracked session.
func (m *Manager) SnapshotAll() []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, session.Clone())
	}
	return out
}

// SnapshotActive returns deep copies of sessions whose status is active.
func (m *Manager) SnapshotActive() []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session.Status == models.StatusActive {
			out = append(out, session.Clone())
		}
	}
	return out
}

// InitializeProcedure resets a session's procedure cursor under the
// registry lock, so snapshots never observe a partial cursor write.
func (m *Manager) InitializeProcedure(sessionID string, proc *procedure.Procedure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return errors.SessionNotFound(sessionID)
	}
	if m.analyzer == nil {
		return errors.New(errors.ErrCodeProcedureUninitialized,
			"no analyzer configured")
	}
	m.analyzer.Initialize(session, proc)
	return nil
}

// Entries returns a copy of a session's entry log.
func (m *Manager) Entries(sessionID string) []*models.SessionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SessionEntry(nil), m.entries[sessionID]...)
}

// AllSessions returns every tracked session.
func (m *Manager) AllSessions() []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, session)
	}
	return out
}

// ActiveSessions returns sessions whose status is active.
func (m *Manager) ActiveSessions() []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if session.Status == models.StatusActive {
			out = append(out, session)
		}
	}
	return out
}

// SessionsByIssue returns sessions tied to an issue.
func (m *Manager) SessionsByIssue(issueID string) []*models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Session
	for _, session := range m.sessions {
		if session.IssueID == issueID {
			out = append(out, session)
		}
	}
	return out
}

// ActiveSessionsByIssue returns active sessions tied to an issue.
func (m *Manager) ActiveSessionsByIssue(issueID string) []*models.Session {
	var out []*models.Session
	for _, session := range m.SessionsByIssue(issueID) {
		if session.Status == models.StatusActive {
			out = append(out, session)
		}
	}
	return out
}

// updateStatus transitions a session's status and merges metadata.
func (m *Manager) updateStatus(sessionID string, status models.SessionStatus, costUSD float64, usage map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	session.Status = status
	session.UpdatedAt = time.Now()
	if costUSD > 0 {
		session.Metadata.CostUSD = costUSD
	}
	if usage != nil {
		session.Metadata.Usage = usage
	}
}

// Cleanup garbage-collects terminal sessions not updated within the
// retention window. Returns the number of sessions removed.
func (m *Manager) Cleanup(retention time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	removed := 0
	for sessionID, session := range m.sessions {
		if session.Status.IsTerminal() && session.UpdatedAt.Before(cutoff) {
			delete(m.sessions, sessionID)
			delete(m.entries, sessionID)
			delete(m.activeTasks, sessionID)
			delete(m.statusActivities, sessionID)
			delete(m.runners, sessionID)
			delete(m.parents, sessionID)
			removed++
			m.logger.WithField("session", sessionID).Info("Cleaned up session")
		}
	}
	return removed
}
