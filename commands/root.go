package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the aof CLI's root cobra command and attaches every
// subcommand named in the external-interfaces contract.
func NewRootCommand() *cobra.Command {
	var root string

	rootCmd := &cobra.Command{
		Use:           "aof",
		Short:         "Deterministic multi-agent orchestration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&root, "root", "", "data directory (defaults to $AOF_ROOT or .)")

	rootCmd.AddCommand(
		newPollCommand(&root),
		newTaskCommand(&root),
		newScanCommand(&root),
		newLintCommand(&root),
		newWatchCommand(&root),
		newMetricsCommand(&root),
		newConfigCommand(&root),
	)
	return rootCmd
}
