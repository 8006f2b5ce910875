package cmd

import (
	"fmt"

	"github.com/grovetools/bridge/schema"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd returns the command printing the effective merged
// configuration. Useful for debugging which layer a setting came from:
// global (~/.config/bridge/bridge.yml), project (bridge.yml), or a
// bridge.override.yml.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Display the effective merged configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if validate, _ := cmd.Flags().GetBool("validate"); validate {
				v, err := schema.NewValidator()
				if err != nil {
					return err
				}
				if err := v.Validate(cfg); err != nil {
					return err
				}
				fmt.Println("Configuration is valid")
				return nil
			}

			if path != "" {
				fmt.Printf("# Source: %s\n", path)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}

	cmd.Flags().Bool("validate", false, "Validate the configuration against the embedded schema")
	return cmd
}
