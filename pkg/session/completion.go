package session

import (
	"context"
	"fmt"
	"time"

	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/protocol"
	"github.com/grovetools/bridge/pkg/tracker"
)

// completeSession processes a terminal result message: it transitions
// the session's status, records cost metadata, and drives procedure
// advancement.
func (m *Manager) completeSession(ctx context.Context, sessionID string, msg protocol.Message) error {
	if msg.Result == nil {
		return nil
	}

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		m.logger.WithField("session", sessionID).Error("No session for result message")
		return nil
	}
	// Whatever Task was open dies with the run.
	delete(m.activeTasks, sessionID)
	m.mu.Unlock()

	status := models.StatusComplete
	if msg.Result.IsError || msg.Result.Subtype != protocol.ResultSuccess {
		status = models.StatusError
	}
	m.updateStatus(sessionID, status, msg.Result.CostUSD, msg.Result.Usage)

	if status == models.StatusError {
		// Failed runs never advance the procedure, but the failure is
		// always surfaced as an error activity.
		m.addResultEntry(ctx, sessionID, msg.Result)
		return nil
	}

	return m.handleProcedureCompletion(ctx, sessionID, session, msg.Result)
}

// handleProcedureCompletion decides what follows a successful result:
// advance to the next subroutine (possibly gated on approval), or post
// the final result and relay it to a waiting parent session.
func (m *Manager) handleProcedureCompletion(ctx context.Context, sessionID string, session *models.Session, result *protocol.ResultPayload) error {
	var next *procedureStep
	if m.analyzer != nil {
		if sub := m.analyzer.GetNext(session); sub != nil {
			next = &procedureStep{name: sub.Name}
		}
	}

	if next == nil {
		// Procedure complete (or no procedure routing at all): post the
		// final result, then chain it back to a parent if this session
		// is a delegated child.
		m.addResultEntry(ctx, sessionID, result)
		m.resumeParentIfChild(ctx, sessionID, result)
		return nil
	}

	current := m.analyzer.GetCurrent(session)
	if current != nil && current.RequiresApproval {
		proceed := m.awaitApproval(ctx, sessionID, result)
		if !proceed {
			return nil
		}
	}

	// The cursor write happens under the registry lock: API snapshots
	// of this session may be taken concurrently.
	m.mu.Lock()
	err := m.analyzer.Advance(session, session.RunnerSessionID)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.WithField("session", sessionID).
		WithField("subroutine", next.name).
		Info("Advancing to next subroutine")

	// Hand the session to the orchestrating loop, which owns run
	// invocation. A full channel is logged rather than blocking the
	// message stream.
	select {
	case m.transitions <- Transition{SessionID: sessionID, Session: session}:
	default:
		m.logger.WithField("session", sessionID).Warn("Transition channel full, dropping notification")
	}
	return nil
}

type procedureStep struct {
	name string
}

// awaitApproval runs the approval gate for the current subroutine.
// Returns true when the human approved; any other outcome posts an
// error activity and halts the procedure.
func (m *Manager) awaitApproval(ctx context.Context, sessionID string, result *protocol.ResultPayload) bool {
	if m.approvals == nil {
		m.postActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityError,
			Body: "Approval workflow failed: approval broker not available",
		}, tracker.CreateActivityOptions{})
		return false
	}

	if err := m.approvals.Register(sessionID); err != nil {
		m.postActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityError,
			Body: fmt.Sprintf("Workflow stopped: approval request failed - %v", err),
		}, tracker.CreateActivityOptions{})
		return false
	}

	resultText := result.Text
	if resultText == "" {
		resultText = "No result available"
	}
	approvalURL := fmt.Sprintf("%s/approval/%s", m.baseURL, sessionID)

	m.postActivity(ctx, sessionID, tracker.ActivityContent{
		Type: tracker.ActivityElicitation,
		Body: fmt.Sprintf("The previous step has completed. Please review the result below and approve to continue:\n\n%s", resultText),
	}, tracker.CreateActivityOptions{
		Signal:         "approval",
		SignalMetadata: map[string]string{"url": approvalURL},
	})

	m.logger.WithField("session", sessionID).Info("Waiting for approval")

	decision, err := m.approvals.Wait(ctx, sessionID)
	if err != nil {
		m.postActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityError,
			Body: fmt.Sprintf("Workflow stopped: %v", err),
		}, tracker.CreateActivityOptions{})
		return false
	}
	if !decision.Approved {
		body := "Workflow stopped: User rejected approval."
		if decision.Feedback != "" {
			body += fmt.Sprintf("\n\nFeedback: %s", decision.Feedback)
		}
		m.postActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityError,
			Body: body,
		}, tracker.CreateActivityOptions{})
		return false
	}

	if decision.Feedback != "" {
		m.postActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityThought,
			Body: fmt.Sprintf("User feedback: %s", decision.Feedback),
		}, tracker.CreateActivityOptions{})
	}
	return true
}

// addResultEntry records the terminal result as an entry and posts it
// as a response, or an error when the run failed.
func (m *Manager) addResultEntry(ctx context.Context, sessionID string, result *protocol.ResultPayload) {
	entry := &models.SessionEntry{
		Type:    models.EntryResult,
		Content: result.Text,
		Metadata: models.EntryMetadata{
			Timestamp:  time.Now(),
			IsError:    result.IsError || result.Subtype != protocol.ResultSuccess,
			DurationMS: result.DurationMS,
		},
	}
	m.syncEntry(ctx, sessionID, entry)
}

// resumeParentIfChild relays a completed child's result into its parent
// session's conversation. Resume failures are logged only; a child's
// inability to notify its parent must not undo its own completion.
func (m *Manager) resumeParentIfChild(ctx context.Context, sessionID string, result *protocol.ResultPayload) {
	parentID, isChild := m.ParentOf(sessionID)
	if !isChild || m.resumeParent == nil {
		return
	}

	childResult := result.Text
	if childResult == "" {
		childResult = "No result available"
	}
	prompt := fmt.Sprintf("Child agent session %s completed with result:\n\n%s", sessionID, childResult)

	if err := m.resumeParent(ctx, parentID, prompt, sessionID); err != nil {
		m.logger.WithError(err).WithField("parent", parentID).
			WithField("child", sessionID).Error("Failed to resume parent session")
		return
	}
	m.logger.WithField("parent", parentID).WithField("child", sessionID).
		Info("Resumed parent session with child result")
}

// PostAnalyzingThought posts the ephemeral routing notice shown while a
// request is being classified.
func (m *Manager) PostAnalyzingThought(ctx context.Context, sessionID string) {
	m.postActivity(ctx, sessionID, tracker.ActivityContent{
		Type: tracker.ActivityThought,
		Body: "Analyzing your request…",
	}, tracker.CreateActivityOptions{Ephemeral: true})
}

// PostProcedureSelectionThought posts the routing outcome. It follows
// the analyzing thought and supersedes it.
func (m *Manager) PostProcedureSelectionThought(ctx context.Context, sessionID, procedureName, classification string) {
	m.postActivity(ctx, sessionID, tracker.ActivityContent{
		Type: tracker.ActivityThought,
		Body: fmt.Sprintf("Selected procedure: **%s** (classified as: %s)", procedureName, classification),
	}, tracker.CreateActivityOptions{})
}
