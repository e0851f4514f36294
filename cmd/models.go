package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newModelsCmd creates the 'models' subcommand.
func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the web-connected AI models available for lookups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			models, err := appInstance.Leadership().Models(cmd.Context())
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			preferred := appInstance.Config().AI.DefaultModel
			for _, m := range models {
				marker := " "
				if m == preferred {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, m)
			}
			return nil
		},
	}
}
