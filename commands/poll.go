package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/aof/scheduler"
)

// newPollCommand implements `aof poll`. The default is a dry-run preview;
// --active is required to actually mutate state, matching the "caller
// decides when to invoke" philosophy the poll shape is built around.
func newPollCommand(root *string) *cobra.Command {
	var (
		active  bool
		dryRun  bool
		project string
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one scheduler cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			if project != "" && app.Project.ID != project {
				return fmt.Errorf("project %q does not match loaded project %q", project, app.Project.ID)
			}

			cfg := scheduler.Config{DryRun: !active || dryRun}
			result, err := app.Scheduler.Poll(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("poll: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"dryRun":          result.DryRun,
				"actionsPlanned":  result.ActionsPlanned,
				"actionsExecuted": result.ActionsExecuted,
				"actionsFailed":   result.ActionsFailed,
				"leasesExpired":   result.LeasesExpired,
				"tasksRequeued":   result.TasksRequeued,
				"tasksPromoted":   result.TasksPromoted,
				"actions":         result.Actions,
				"at":              time.Now().UTC().Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "actually mutate state (default is a dry-run preview)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "force dry-run even with --active")
	cmd.Flags().StringVar(&project, "project", "", "project id to poll (must match the loaded project)")
	return cmd
}
