// Package protocol defines the typed message stream emitted by agent
// runners. A runner produces an ordered sequence of messages tagged
// system, user, assistant, or result; consumers process them one at a
// time in arrival order.
package protocol

import "encoding/json"

// MessageType tags a streamed message.
type MessageType string

const (
	MessageSystem    MessageType = "system"
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageResult    MessageType = "result"
)

// SystemSubtype distinguishes system message kinds.
type SystemSubtype string

const (
	SystemInit   SystemSubtype = "init"
	SystemStatus SystemSubtype = "status"
)

// ResultSubtype distinguishes terminal result outcomes.
type ResultSubtype string

const (
	ResultSuccess        ResultSubtype = "success"
	ResultErrorMaxTurns  ResultSubtype = "error_max_turns"
	ResultErrorExecution ResultSubtype = "error_during_execution"
)

// Message is one streamed protocol message. Exactly one of the payload
// fields is populated, selected by Type.
type Message struct {
	Type      MessageType    `json:"type"`
	System    *SystemPayload `json:"system,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	Result    *ResultPayload `json:"result,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// SystemPayload carries init and status sub-kinds.
type SystemPayload struct {
	Subtype         SystemSubtype `json:"subtype"`
	RunnerSessionID string        `json:"runner_session_id,omitempty"`
	Model           string        `json:"model,omitempty"`
	Tools           []string      `json:"tools,omitempty"`
	PermissionMode  string        `json:"permission_mode,omitempty"`
	// Status is the transient status name for SystemStatus messages.
	// An empty Status on a status message means the prior state cleared.
	Status string `json:"status,omitempty"`
}

// ResultPayload carries the terminal outcome of an agent run.
type ResultPayload struct {
	Subtype    ResultSubtype    `json:"subtype"`
	IsError    bool             `json:"is_error"`
	Text       string           `json:"text,omitempty"`
	CostUSD    float64          `json:"cost_usd,omitempty"`
	Usage      map[string]int64 `json:"usage,omitempty"`
	NumTurns   int              `json:"num_turns,omitempty"`
	DurationMS int64            `json:"duration_ms,omitempty"`
}

// ContentBlockType tags the blocks inside user/assistant messages.
type ContentBlockType string

const (
	BlockText       ContentBlockType = "text"
	BlockToolUse    ContentBlockType = "tool_use"
	BlockToolResult ContentBlockType = "tool_result"
)

// ContentBlock is one block of a user or assistant message.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// Text blocks.
	Text string `json:"text,omitempty"`

	// Tool use blocks.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// Tool result blocks reference the originating tool use via ToolUseID.
	IsError bool `json:"is_error,omitempty"`

	// ParentToolUseID is set on blocks emitted by a nested sub-agent run.
	ParentToolUseID string `json:"parent_tool_use_id,omitempty"`
}
