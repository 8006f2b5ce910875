package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *BridgeError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *BridgeError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// SessionNotFound creates a session not found error
func SessionNotFound(sessionID string) *BridgeError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", sessionID)).
		WithDetail("sessionId", sessionID)
}

// ProcedureNotFound creates a procedure not found error
func ProcedureNotFound(name string) *BridgeError {
	return New(ErrCodeProcedureNotFound, fmt.Sprintf("procedure '%s' not found in catalog", name)).
		WithDetail("procedure", name)
}

// ProcedureUninitialized indicates an advance was attempted on a session
// whose procedure metadata was never initialized. This is a programming
// error in the caller, not a recoverable condition.
func ProcedureUninitialized(sessionID string) *BridgeError {
	return New(ErrCodeProcedureUninitialized,
		fmt.Sprintf("cannot advance: session '%s' has no procedure metadata", sessionID)).
		WithDetail("sessionId", sessionID)
}

// ApprovalTimeout creates an approval timeout error
func ApprovalTimeout(sessionID string, timeout string) *BridgeError {
	return New(ErrCodeApprovalTimeout,
		fmt.Sprintf("approval request for session '%s' timed out after %s", sessionID, timeout)).
		WithDetail("sessionId", sessionID).
		WithDetail("timeout", timeout)
}

// ApprovalShutdown creates the error pending approvals are rejected with
// when the server shuts down.
func ApprovalShutdown(sessionID string) *BridgeError {
	return New(ErrCodeApprovalShutdown,
		fmt.Sprintf("approval request for session '%s' rejected: server shutting down", sessionID)).
		WithDetail("sessionId", sessionID)
}

// TokenRefreshFailed creates a token refresh failure error
func TokenRefreshFailed(workspaceID string, err error) *BridgeError {
	return Wrap(err, ErrCodeTokenRefreshFailed,
		fmt.Sprintf("failed to refresh token for workspace '%s'", workspaceID)).
		WithDetail("workspaceId", workspaceID)
}
