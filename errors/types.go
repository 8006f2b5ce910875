package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Session errors
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionNoRunner ErrorCode = "SESSION_NO_RUNNER"

	// Procedure errors
	ErrCodeProcedureNotFound      ErrorCode = "PROCEDURE_NOT_FOUND"
	ErrCodeProcedureUninitialized ErrorCode = "PROCEDURE_UNINITIALIZED"
	ErrCodeClassifyFailed         ErrorCode = "CLASSIFY_FAILED"
	ErrCodeWorkflowInvalid        ErrorCode = "WORKFLOW_INVALID"

	// Approval errors
	ErrCodeApprovalTimeout  ErrorCode = "APPROVAL_TIMEOUT"
	ErrCodeApprovalRejected ErrorCode = "APPROVAL_REJECTED"
	ErrCodeApprovalExpired  ErrorCode = "APPROVAL_EXPIRED"
	ErrCodeApprovalShutdown ErrorCode = "APPROVAL_SHUTDOWN"
	ErrCodeApprovalPending  ErrorCode = "APPROVAL_PENDING"

	// Auth errors
	ErrCodeTokenRefreshFailed ErrorCode = "TOKEN_REFRESH_FAILED"

	// Tracker errors
	ErrCodeTrackerSyncFailed ErrorCode = "TRACKER_SYNC_FAILED"
	ErrCodeIssueNotFound     ErrorCode = "ISSUE_NOT_FOUND"

	// Git errors
	ErrCodeGitNotInstalled     ErrorCode = "GIT_NOT_INSTALLED"
	ErrCodeWorktreeCreateError ErrorCode = "WORKTREE_CREATE_FAILED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// BridgeError represents a structured error with context
type BridgeError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *BridgeError) WithDetail(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *BridgeError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new BridgeError
func New(code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a BridgeError
func Wrap(err error, code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific BridgeError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	bridgeErr, ok := err.(*BridgeError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return bridgeErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	bridgeErr, ok := err.(*BridgeError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return bridgeErr.Code
}
