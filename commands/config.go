package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/aof/config"
)

func newConfigCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Project manifest access",
	}
	cmd.AddCommand(
		newConfigGetCommand(root),
		newConfigSetCommand(root),
		newConfigValidateCommand(root),
	)
	return cmd
}

func newConfigGetCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the loaded project manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(app.Project)
		},
	}
	return cmd
}

func newConfigSetCommand(root *string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Atomically update and save the project manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			if owner != "" {
				app.Project.Owner = owner
			}
			if err := config.SaveProject(app.Root, app.Project); err != nil {
				return fmt.Errorf("save project: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(app.Project)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "project owner")
	return cmd
}

func newConfigValidateCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the project manifest and org chart (alias of lint)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := resolveRoot(*root)
			loader := config.NewLoader(r, nil)
			_, issues, err := loader.Load()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			_ = enc.Encode(map[string]any{"issues": issues, "ok": err == nil})

			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			return nil
		},
	}
	return cmd
}
