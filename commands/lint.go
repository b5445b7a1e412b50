package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/aof/config"
)

func newLintCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate the project manifest and org chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := resolveRoot(*root)
			loader := config.NewLoader(r, nil)
			_, issues, err := loader.Load()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			_ = enc.Encode(map[string]any{"issues": issues, "ok": err == nil})

			if err != nil {
				return fmt.Errorf("lint: %w", err)
			}
			return nil
		},
	}
	return cmd
}
