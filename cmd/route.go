package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grovetools/bridge/pkg/models"
	"github.com/grovetools/bridge/pkg/paths"
	"github.com/grovetools/bridge/pkg/procedure"
	"github.com/grovetools/bridge/pkg/runner"
	"github.com/spf13/cobra"
)

// NewRouteCmd returns the one-shot request classification command. It
// runs the same router the daemon uses, so it is the quickest way to
// see which procedure a request would get.
func NewRouteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route <request text>",
		Short: "Classify a request and show the procedure it routes to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			home := paths.Home(cfg.Settings.BridgeHome)
			catalog := procedure.NewCatalog()
			if err := procedure.LoadOverrides(catalog, paths.WorkflowsDir(home)); err != nil {
				return err
			}

			var r runner.Runner
			switch models.RunnerKind(cfg.Settings.DefaultRunner) {
			case models.RunnerGemini:
				r = runner.NewGeminiRunner()
			default:
				r = runner.NewClaudeRunner()
			}
			classifier := runner.NewRunnerClassifier(r, cfg.Settings.RouterModel)
			router := procedure.NewRouter(classifier, catalog)

			decision := router.DetermineRoutine(cmd.Context(), strings.Join(args, " "))

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				out := map[string]string{
					"classification": string(decision.Classification),
					"procedure":      decision.Procedure.Name,
					"reasoning":      decision.Reasoning,
				}
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Classification: %s\n", decision.Classification)
			fmt.Printf("Procedure:      %s\n", decision.Procedure.Name)
			for i, sub := range decision.Procedure.Subroutines {
				fmt.Printf("  %d. %s\n", i+1, sub.Name)
			}
			fmt.Printf("Reasoning:      %s\n", decision.Reasoning)
			return nil
		},
	}
}
