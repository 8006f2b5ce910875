package cli

import (
	"fmt"
	"os"

	"github.com/grovetools/bridge/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
	}
}

// Handle provides user-friendly error messages based on error type
func (h *ErrorHandler) Handle(err error) error {
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(os.Stderr, "❌ Configuration not found. Create a bridge.yml or pass --config.\n")
		return err

	case errors.ErrCodeSessionNotFound:
		if bridgeErr, ok := err.(*errors.BridgeError); ok {
			fmt.Fprintf(os.Stderr, "❌ Session '%s' not found\n", bridgeErr.Details["sessionId"])
			fmt.Fprintf(os.Stderr, "Run 'bridge sessions' to see known sessions.\n")
		}
		return err

	case errors.ErrCodeGitNotInstalled:
		fmt.Fprintf(os.Stderr, "❌ git is not installed or not on PATH. Workspaces need git.\n")
		return err

	case errors.ErrCodeApprovalTimeout:
		if bridgeErr, ok := err.(*errors.BridgeError); ok {
			fmt.Fprintf(os.Stderr, "❌ Approval for session '%s' timed out after %s\n",
				bridgeErr.Details["sessionId"], bridgeErr.Details["timeout"])
		}
		return err

	case errors.ErrCodeProcedureNotFound:
		if bridgeErr, ok := err.(*errors.BridgeError); ok {
			fmt.Fprintf(os.Stderr, "❌ Procedure '%s' not found in the catalog\n", bridgeErr.Details["procedure"])
			fmt.Fprintf(os.Stderr, "Check the workflow overrides under ~/.bridge/workflows.\n")
		}
		return err

	default:
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)

		// If verbose mode, show full error details
		if h.Verbose {
			if bridgeErr, ok := err.(*errors.BridgeError); ok {
				fmt.Fprintf(os.Stderr, "\nError details:\n%s\n", bridgeErr.ToJSON())
			}
		}
		return err
	}
}
