package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/protocol"
	"github.com/grovetools/bridge/pkg/tracker"
)

// HandleMessage translates one streamed protocol message for a session.
// Messages must be delivered in emission order. Any failure while
// handling a message forces the session into error status; the terminal
// state is the user-visible signal that the run genuinely failed.
func (m *Manager) HandleMessage(ctx context.Context, sessionID string, msg protocol.Message) error {
	err := m.dispatch(ctx, sessionID, msg)
	if err != nil {
		m.logger.WithError(err).WithField("session", sessionID).Error("Message handling failed")
		m.updateStatus(sessionID, models.StatusError, 0, nil)
	}
	return err
}

func (m *Manager) dispatch(ctx context.Context, sessionID string, msg protocol.Message) error {
	switch msg.Type {
	case protocol.MessageSystem:
		return m.handleSystem(ctx, sessionID, msg)
	case protocol.MessageUser, protocol.MessageAssistant:
		entry := m.buildEntry(sessionID, msg)
		m.syncEntry(ctx, sessionID, entry)
		return nil
	case protocol.MessageResult:
		return m.completeSession(ctx, sessionID, msg)
	default:
		m.logger.WithField("type", msg.Type).Warn("Unknown message type")
		return nil
	}
}

func (m *Manager) handleSystem(ctx context.Context, sessionID string, msg protocol.Message) error {
	if msg.System == nil {
		return nil
	}
	switch msg.System.Subtype {
	case protocol.SystemInit:
		return m.handleInit(ctx, sessionID, msg.System)
	case protocol.SystemStatus:
		m.handleStatus(ctx, sessionID, msg.System)
		return nil
	default:
		return nil
	}
}

// handleInit records the runner session id and run metadata, then posts
// the model notification. The notification is informational and is
// posted even when the current subroutine suppresses thoughts.
func (m *Manager) handleInit(ctx context.Context, sessionID string, payload *protocol.SystemPayload) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return errors.SessionNotFound(sessionID)
	}
	session.RunnerSessionID = payload.RunnerSessionID
	session.UpdatedAt = time.Now()
	if payload.Model != "" {
		session.Metadata.Model = payload.Model
	}
	if payload.Tools != nil {
		session.Metadata.Tools = payload.Tools
	}
	if payload.PermissionMode != "" {
		session.Metadata.PermissionMode = payload.PermissionMode
	}
	m.mu.Unlock()

	if payload.Model != "" {
		m.postActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityThought,
			Body: fmt.Sprintf("Using model: %s", payload.Model),
		}, tracker.CreateActivityOptions{})
	}
	return nil
}

// handleStatus posts an ephemeral notice while the runner compacts its
// history, then a non-ephemeral one when the status clears. The second
// supersedes the first under the ephemeral visibility rule.
func (m *Manager) handleStatus(ctx context.Context, sessionID string, payload *protocol.SystemPayload) {
	switch payload.Status {
	case "compacting":
		result, err := m.tracker.CreateAgentActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityThought,
			Body: "Compacting conversation history…",
		}, tracker.CreateActivityOptions{Ephemeral: true})
		if err != nil || !result.Success {
			m.logger.WithError(err).Warn("Failed to post compacting status")
			return
		}
		m.mu.Lock()
		m.statusActivities[sessionID] = result.Activity.ID
		m.mu.Unlock()

	case "":
		m.mu.Lock()
		_, hadStatus := m.statusActivities[sessionID]
		delete(m.statusActivities, sessionID)
		m.mu.Unlock()
		if !hadStatus {
			return
		}
		m.postActivity(ctx, sessionID, tracker.ActivityContent{
			Type: tracker.ActivityThought,
			Body: "Conversation history compacted",
		}, tracker.CreateActivityOptions{})
	}
}

// buildEntry flattens a user/assistant message into a session entry.
// Text blocks are joined; the first tool_use or tool_result block
// supplies the tool correlation metadata.
func (m *Manager) buildEntry(sessionID string, msg protocol.Message) *models.SessionEntry {
	entry := &models.SessionEntry{
		Metadata: models.EntryMetadata{Timestamp: time.Now()},
	}
	if msg.Type == protocol.MessageUser {
		entry.Type = models.EntryUser
	} else {
		entry.Type = models.EntryAssistant
	}

	var texts []string
	for _, block := range msg.Content {
		if block.ParentToolUseID != "" && entry.Metadata.ParentToolUseID == "" {
			entry.Metadata.ParentToolUseID = block.ParentToolUseID
		}
		switch block.Type {
		case protocol.BlockText:
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case protocol.BlockToolUse:
			if entry.Metadata.ToolUseID == "" {
				entry.Metadata.ToolUseID = block.ToolUseID
				entry.Metadata.ToolName = block.ToolName
				entry.Metadata.ToolInput = string(block.ToolInput)
			}
			texts = append(texts, string(block.ToolInput))
		case protocol.BlockToolResult:
			if entry.Metadata.ToolUseID == "" {
				entry.Metadata.ToolUseID = block.ToolUseID
				entry.Metadata.ToolResultError = block.IsError
			}
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		}
	}
	entry.Content = strings.Join(texts, "\n")
	return entry
}

// appendEntry stores an entry in the session's log and returns it.
func (m *Manager) appendEntry(sessionID string, entry *models.SessionEntry) {
	m.mu.Lock()
	m.entries[sessionID] = append(m.entries[sessionID], entry)
	m.mu.Unlock()
}
