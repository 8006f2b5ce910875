package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// NewRequestCmd returns the command that submits a request to a running
// bridge, creating a new agent session or resuming an existing one.
func NewRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <request text>",
		Short: "Submit a request for an issue to the running bridge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _ := cmd.Flags().GetString("repo")
			issueID, _ := cmd.Flags().GetString("issue")
			title, _ := cmd.Flags().GetString("title")
			session, _ := cmd.Flags().GetString("session")

			if session == "" && (repo == "" || issueID == "") {
				return fmt.Errorf("either --session or both --repo and --issue are required")
			}

			payload := map[string]interface{}{
				"repository": repo,
				"issue": map[string]string{
					"id":         issueID,
					"identifier": issueID,
					"title":      title,
				},
				"request": strings.Join(args, " "),
				"session": session,
			}
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			resp, err := http.Post(serverURL(cmd)+"/api/requests", "application/json", bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("is the bridge running? %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
			}

			var created map[string]string
			if err := json.Unmarshal(body, &created); err != nil {
				return fmt.Errorf("unexpected server response: %w", err)
			}
			fmt.Printf("Session: %s\n", created["session"])
			return nil
		},
	}

	cmd.Flags().String("repo", "", "Repository id from bridge.yml")
	cmd.Flags().String("issue", "", "Issue identifier (e.g. ENG-42)")
	cmd.Flags().String("title", "", "Issue title")
	cmd.Flags().String("session", "", "Resume an existing session instead of creating one")
	addServerFlag(cmd)
	return cmd
}
