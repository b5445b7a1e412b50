package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/aof/task"
)

func newScanCommand(root *string) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List tasks grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			if project != "" && app.Project.ID != project {
				return fmt.Errorf("project %q does not match loaded project %q", project, app.Project.ID)
			}

			counts := map[task.Status][]string{}
			for _, status := range task.AllStatuses {
				tasks, err := app.Store.ListStatus(status)
				if err != nil {
					return err
				}
				ids := make([]string, 0, len(tasks))
				for _, t := range tasks {
					ids = append(ids, fmt.Sprintf("%s %s", t.ID, t.Title))
				}
				counts[status] = ids
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(counts)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project id to scan")
	return cmd
}
