// Package tracker abstracts the issue-tracking platform the bridge
// posts agent activities to. The bridge only creates activities; it
// never needs update semantics.
package tracker

import "context"

// ActivityType tags tracker-visible activity content.
type ActivityType string

const (
	ActivityThought     ActivityType = "thought"
	ActivityAction      ActivityType = "action"
	ActivityResponse    ActivityType = "response"
	ActivityError       ActivityType = "error"
	ActivityElicitation ActivityType = "elicitation"
)

// ActivityContent is the tagged content union of an activity. Body is
// used by thought/response/error/elicitation; Action, Parameter, and
// Result by action activities.
type ActivityContent struct {
	Type      ActivityType `json:"type"`
	Body      string       `json:"body,omitempty"`
	Action    string       `json:"action,omitempty"`
	Parameter string       `json:"parameter,omitempty"`
	Result    string       `json:"result,omitempty"`
}

// CreateActivityOptions carries optional flags for activity creation.
type CreateActivityOptions struct {
	// Ephemeral marks the activity as logically replaced by any later
	// activity in the same session.
	Ephemeral bool

	// Signal optionally names a signal the activity carries (e.g. an
	// approval elicitation).
	Signal string

	// SignalMetadata carries signal-specific data such as callback URLs.
	SignalMetadata map[string]string
}

// Activity is one created tracker activity.
type Activity struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Content   ActivityContent `json:"content"`
	Ephemeral bool            `json:"ephemeral,omitempty"`
}

// CreateActivityResult reports the outcome of an activity create.
type CreateActivityResult struct {
	Success  bool
	Activity *Activity
}

// IssueTracker is the tracker surface the bridge depends on.
type IssueTracker interface {
	// CreateAgentActivity posts one activity to a session's feed.
	// Creates are idempotent from the bridge's perspective.
	CreateAgentActivity(ctx context.Context, sessionID string, content ActivityContent, opts CreateActivityOptions) (*CreateActivityResult, error)
}
