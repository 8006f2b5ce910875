package errors

import (
	"fmt"
	"testing"
)

func TestBridgeError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeSessionNotFound, "session not found")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeTrackerSyncFailed, "activity sync failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeTrackerSyncFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeSessionNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("sessionId", "sess-1").WithDetail("issueId", "ISS-42")
	if detailed.Details["sessionId"] != "sess-1" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	// Test SessionNotFound
	err := SessionNotFound("sess-1")
	if err.Code != ErrCodeSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSessionNotFound, err.Code)
	}
	if err.Details["sessionId"] != "sess-1" {
		t.Error("SessionNotFound should include sessionId detail")
	}

	// Test ProcedureUninitialized
	err = ProcedureUninitialized("sess-2")
	if err.Code != ErrCodeProcedureUninitialized {
		t.Errorf("expected code %s, got %s", ErrCodeProcedureUninitialized, err.Code)
	}
	if err.Details["sessionId"] != "sess-2" {
		t.Error("ProcedureUninitialized should include sessionId detail")
	}

	// Test ApprovalTimeout
	err = ApprovalTimeout("sess-3", "30m")
	if err.Code != ErrCodeApprovalTimeout {
		t.Errorf("expected code %s, got %s", ErrCodeApprovalTimeout, err.Code)
	}
	if err.Details["timeout"] != "30m" {
		t.Error("ApprovalTimeout should include timeout detail")
	}
}
