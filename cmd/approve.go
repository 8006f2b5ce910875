package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// NewApproveCmd returns the command resolving a pending approval gate.
func NewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <session-id>",
		Short: "Approve or reject a session waiting at an approval gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			reject, _ := cmd.Flags().GetBool("reject")
			feedback, _ := cmd.Flags().GetString("feedback")

			payload, err := json.Marshal(map[string]interface{}{
				"approved": !reject,
				"feedback": feedback,
			})
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/approval/%s", serverURL(cmd), sessionID)
			resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("is the bridge running? %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
			}

			if reject {
				fmt.Printf("Rejected session %s\n", sessionID)
			} else {
				fmt.Printf("Approved session %s\n", sessionID)
			}
			return nil
		},
	}

	cmd.Flags().Bool("reject", false, "Reject instead of approving")
	cmd.Flags().String("feedback", "", "Feedback relayed to the agent")
	addServerFlag(cmd)
	return cmd
}
