package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/runner"
	"github.com/grovetools/bridge/pkg/tracker"
)

// nestedToolPrefix marks tool calls running inside the session's open
// Task sub-agent.
const nestedToolPrefix = "↪ "

// isTodoTool reports whether a tool name is the todo-list tool of
// either runner flavor.
func isTodoTool(name string) bool {
	return name == "TodoWrite" || name == nestedToolPrefix+"TodoWrite" || name == "write_todos"
}

// syncEntry appends an entry to the session log and, unless filtered,
// escalates it to a tracker activity. Sync failures leave the entry in
// the log without an activity id; the stream keeps going.
func (m *Manager) syncEntry(ctx context.Context, sessionID string, entry *models.SessionEntry) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		m.logger.WithField("session", sessionID).Warn("No session for entry")
		return
	}

	m.appendEntry(sessionID, entry)

	content, opts, post := m.classifyEntry(sessionID, entry)
	if !post {
		return
	}

	// A subroutine flagged to suppress thought posting runs silently:
	// thoughts and actions are dropped, responses and errors never are.
	if m.analyzer != nil {
		if session, ok := m.Get(sessionID); ok {
			if current := m.analyzer.GetCurrent(session); current != nil && current.SuppressThoughtPosting {
				if content.Type == tracker.ActivityThought || content.Type == tracker.ActivityAction {
					m.logger.WithField("subroutine", current.Name).Debug("Suppressing activity posting")
					return
				}
			}
		}
	}

	if id := m.postActivity(ctx, sessionID, content, opts); id != "" {
		entry.ActivityID = id
	}
}

// classifyEntry maps an entry to tracker activity content. The third
// return value is false when the entry stays log-only.
func (m *Manager) classifyEntry(sessionID string, entry *models.SessionEntry) (tracker.ActivityContent, tracker.CreateActivityOptions, bool) {
	switch entry.Type {
	case models.EntryUser:
		return m.classifyUserEntry(sessionID, entry)
	case models.EntryAssistant:
		return m.classifyAssistantEntry(sessionID, entry)
	case models.EntrySystem:
		return tracker.ActivityContent{Type: tracker.ActivityThought, Body: entry.Content},
			tracker.CreateActivityOptions{}, true
	case models.EntryResult:
		activityType := tracker.ActivityResponse
		if entry.Metadata.IsError {
			activityType = tracker.ActivityError
		}
		return tracker.ActivityContent{Type: activityType, Body: entry.Content},
			tracker.CreateActivityOptions{}, true
	default:
		return tracker.ActivityContent{Type: tracker.ActivityThought, Body: entry.Content},
			tracker.CreateActivityOptions{}, true
	}
}

// classifyUserEntry handles tool results. A result matching the open
// Task correlation closes it as a completion thought; other results
// pair up with their recorded tool call as an action activity.
func (m *Manager) classifyUserEntry(sessionID string, entry *models.SessionEntry) (tracker.ActivityContent, tracker.CreateActivityOptions, bool) {
	toolUseID := entry.Metadata.ToolUseID
	if toolUseID == "" {
		// Plain user prompts are recorded but not re-posted; the
		// tracker already shows the user's own message.
		return tracker.ActivityContent{}, tracker.CreateActivityOptions{}, false
	}

	m.mu.Lock()
	activeTask, hasTask := m.activeTasks[sessionID]
	if hasTask && activeTask == toolUseID {
		delete(m.activeTasks, sessionID)
		m.mu.Unlock()
		body := fmt.Sprintf("✅ Task Completed\n\n\n\n%s\n\n---\n\n", entry.Content)
		return tracker.ActivityContent{Type: tracker.ActivityThought, Body: body},
			tracker.CreateActivityOptions{}, true
	}
	call, found := m.toolCalls[toolUseID]
	delete(m.toolCalls, toolUseID)
	m.mu.Unlock()

	if !found {
		// Correlation loss degrades gracefully: drop the orphaned
		// result instead of crashing the stream.
		m.logger.WithField("toolUseId", toolUseID).Debug("Dropping tool result with no recorded call")
		return tracker.ActivityContent{}, tracker.CreateActivityOptions{}, false
	}

	// Todo-list results are already represented by their assistant-side
	// thought.
	if isTodoTool(call.name) {
		return tracker.ActivityContent{}, tracker.CreateActivityOptions{}, false
	}

	formatter := m.formatterFor(sessionID)
	resultText := strings.TrimSpace(entry.Content)
	content := tracker.ActivityContent{
		Type:      tracker.ActivityAction,
		Action:    formatter.FormatToolActionName(call.name, call.input, entry.Metadata.ToolResultError),
		Parameter: formatter.FormatToolParameter(call.name, call.input),
		Result:    formatter.FormatToolResult(call.name, call.input, resultText, entry.Metadata.ToolResultError),
	}
	return content, tracker.CreateActivityOptions{}, true
}

// classifyAssistantEntry handles tool invocations and plain thoughts.
func (m *Manager) classifyAssistantEntry(sessionID string, entry *models.SessionEntry) (tracker.ActivityContent, tracker.CreateActivityOptions, bool) {
	toolUseID := entry.Metadata.ToolUseID
	if toolUseID == "" {
		return tracker.ActivityContent{Type: tracker.ActivityThought, Body: entry.Content},
			tracker.CreateActivityOptions{}, true
	}

	toolName := entry.Metadata.ToolName
	if toolName == "" {
		toolName = "Tool"
	}
	toolInput := entry.Metadata.ToolInput
	if toolInput == "" {
		toolInput = entry.Content
	}

	// A call nested under the session's open Task gets the sub-step
	// prefix, both for display and for the recorded name its result
	// will pair with.
	displayName := toolName
	m.mu.Lock()
	if entry.Metadata.ParentToolUseID != "" {
		if activeTask, ok := m.activeTasks[sessionID]; ok && activeTask == entry.Metadata.ParentToolUseID {
			displayName = nestedToolPrefix + toolName
		}
	}
	m.toolCalls[toolUseID] = toolCall{name: displayName, input: toolInput}
	if toolName == "Task" {
		m.activeTasks[sessionID] = toolUseID
	}
	m.mu.Unlock()

	formatter := m.formatterFor(sessionID)

	switch {
	case isTodoTool(toolName):
		return tracker.ActivityContent{
			Type: tracker.ActivityThought,
			Body: formatter.FormatTodoWriteParameter(entry.Content),
		}, tracker.CreateActivityOptions{}, true

	case toolName == "Task":
		// The Task action stays visible until its completion thought
		// arrives; its correlation is now the session's open Task.
		return tracker.ActivityContent{
			Type:      tracker.ActivityAction,
			Action:    displayName,
			Parameter: formatter.FormatToolParameter(toolName, toolInput),
		}, tracker.CreateActivityOptions{}, true

	default:
		// Ordinary tool calls are ephemeral, superseded once their
		// result arrives.
		return tracker.ActivityContent{
			Type:      tracker.ActivityAction,
			Action:    displayName,
			Parameter: formatter.FormatToolParameter(displayName, toolInput),
		}, tracker.CreateActivityOptions{Ephemeral: true}, true
	}
}

// formatterFor resolves a session's formatter: the live runner's if
// attached, otherwise the default for the session's runner flavor.
func (m *Manager) formatterFor(sessionID string) runner.Formatter {
	m.mu.Lock()
	r, hasRunner := m.runners[sessionID]
	session, hasSession := m.sessions[sessionID]
	m.mu.Unlock()

	if hasRunner {
		return r.Formatter()
	}
	if hasSession && session.RunnerKind == models.RunnerGemini {
		return runner.NewGeminiFormatter()
	}
	return runner.NewClaudeFormatter()
}

// postActivity posts one activity, returning its id or "" on failure.
// Failures are logged and swallowed: a tracker outage must not abort
// session processing.
func (m *Manager) postActivity(ctx context.Context, sessionID string, content tracker.ActivityContent, opts tracker.CreateActivityOptions) string {
	result, err := m.tracker.CreateAgentActivity(ctx, sessionID, content, opts)
	if err != nil {
		m.logger.WithError(err).WithField("session", sessionID).Error("Failed to create activity")
		return ""
	}
	if !result.Success || result.Activity == nil {
		m.logger.WithField("session", sessionID).Error("Activity create reported failure")
		return ""
	}
	return result.Activity.ID
}
