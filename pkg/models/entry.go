package models

import "time"

// EntryType mirrors the protocol message kind that produced an entry.
type EntryType string

const (
	EntryUser      EntryType = "user"
	EntryAssistant EntryType = "assistant"
	EntrySystem    EntryType = "system"
	EntryResult    EntryType = "result"
)

// EntryMetadata carries per-entry correlation data.
type EntryMetadata struct {
	Timestamp       time.Time `json:"timestamp"`
	ParentToolUseID string    `json:"parent_tool_use_id,omitempty"`
	ToolUseID       string    `json:"tool_use_id,omitempty"`
	ToolName        string    `json:"tool_name,omitempty"`
	ToolInput       string    `json:"tool_input,omitempty"`
	ToolResultError bool      `json:"tool_result_error,omitempty"`

	// Result entry fields.
	IsError    bool  `json:"is_error,omitempty"`
	DurationMS int64 `json:"duration_ms,omitempty"`
}

// SessionEntry is one record in a session's append-only entry log.
// ActivityID is set only after a successful sync to the tracker; an
// empty ActivityID means the entry was recorded but never escalated to
// a visible activity.
type SessionEntry struct {
	Type       EntryType     `json:"type"`
	Content    string        `json:"content"`
	Metadata   EntryMetadata `json:"metadata"`
	ActivityID string        `json:"activity_id,omitempty"`
}
