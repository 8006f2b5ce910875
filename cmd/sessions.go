package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/grovetools/bridge/pkg/models"
	"github.com/spf13/cobra"
)

// NewSessionsCmd returns the command listing sessions on a running
// bridge.
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List agent sessions on the running bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := serverURL(cmd) + "/api/sessions"
			if active, _ := cmd.Flags().GetBool("active"); active {
				url += "?active=true"
			}

			body, err := getJSON(url)
			if err != nil {
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				fmt.Println(string(body))
				return nil
			}

			var sessions []struct {
				models.Session
				WorkspaceStatus *struct {
					Branch string `json:"branch"`
				} `json:"workspace_status"`
			}
			if err := json.Unmarshal(body, &sessions); err != nil {
				return fmt.Errorf("unexpected server response: %w", err)
			}

			if len(sessions) == 0 {
				fmt.Println("No sessions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tISSUE\tSTATUS\tPROCEDURE\tBRANCH")
			for _, s := range sessions {
				proc := "-"
				if s.Metadata.Procedure != nil {
					proc = s.Metadata.Procedure.ProcedureName
				}
				branch := "-"
				if s.WorkspaceStatus != nil {
					branch = s.WorkspaceStatus.Branch
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					s.SessionID, s.Issue.Identifier, s.Status, proc, branch)
			}
			return w.Flush()
		},
	}

	cmd.Flags().Bool("active", false, "Only show sessions with running work")
	addServerFlag(cmd)
	return cmd
}

// addServerFlag registers the --server flag used by client commands.
func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Bridge server base URL (default: from bridge.yml)")
}

// serverURL resolves the bridge server address: the --server flag if
// set, the configured base URL otherwise, the compiled default last.
func serverURL(cmd *cobra.Command) string {
	if flag, _ := cmd.Flags().GetString("server"); flag != "" {
		return flag
	}
	if cfg, _, err := loadConfig(cmd); err == nil && cfg.Settings.BaseURL != "" {
		return cfg.Settings.BaseURL
	}
	return "http://localhost:3456"
}

func getJSON(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("is the bridge running? %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}
	return body, nil
}
