package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c360studio/aof/store"
	"github.com/c360studio/aof/task"
)

func newTaskCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task CRUD",
	}
	cmd.AddCommand(
		newTaskCreateCommand(root),
		newTaskGetCommand(root),
		newTaskListCommand(root),
		newTaskUpdateCommand(root),
		newTaskCancelCommand(root),
		newTaskBlockCommand(root),
		newTaskUnblockCommand(root),
		newTaskDepAddCommand(root),
		newTaskDepRemoveCommand(root),
	)
	return cmd
}

func printTask(cmd *cobra.Command, t *task.Task) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(t)
}

func newTaskCreateCommand(root *string) *cobra.Command {
	var (
		title, body, priority, agent, role, team string
		dependsOn, tags                          []string
		startReady                               bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.Create(store.CreateInput{
				Title:      title,
				Body:       body,
				Priority:   task.Priority(priority),
				Routing:    task.Routing{Agent: agent, Role: role, Team: team, Tags: tags},
				DependsOn:  dependsOn,
				CreatedBy:  "cli",
				StartReady: startReady,
			})
			if err != nil {
				return fmt.Errorf("create task: %w", err)
			}
			return printTask(cmd, t)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&body, "body", "", "task body")
	cmd.Flags().StringVar(&priority, "priority", "normal", "critical|high|normal|low")
	cmd.Flags().StringVar(&agent, "agent", "", "routing.agent")
	cmd.Flags().StringVar(&role, "role", "", "routing.role")
	cmd.Flags().StringVar(&team, "team", "", "routing.team")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "routing.tags")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "dependency task ids")
	cmd.Flags().BoolVar(&startReady, "ready", false, "create directly in ready instead of backlog")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskGetCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Get a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.Get(args[0])
			if err != nil {
				return err
			}
			return printTask(cmd, t)
		},
	}
	return cmd
}

func newTaskListCommand(root *string) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			var tasks []*task.Task
			if status != "" {
				tasks, err = app.Store.ListStatus(task.Status(status))
			} else {
				tasks, err = app.Store.List()
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tasks)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status bucket")
	return cmd
}

func newTaskUpdateCommand(root *string) *cobra.Command {
	var title, body string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task's title/body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.Update(args[0], func(t *task.Task) {
				if title != "" {
					t.Title = title
				}
				if body != "" {
					t.Body = body
				}
			})
			if err != nil {
				return fmt.Errorf("update task: %w", err)
			}
			return printTask(cmd, t)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&body, "body", "", "new body")
	return cmd
}

func newTaskCancelCommand(root *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.Transition(args[0], task.StatusCancelled, store.TransitionOpts{Actor: "cli", Reason: reason})
			if err != nil {
				return fmt.Errorf("cancel task: %w", err)
			}
			return printTask(cmd, t)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func newTaskBlockCommand(root *string) *cobra.Command {
	var reason string
	var blockers []string
	cmd := &cobra.Command{
		Use:   "block <task-id>",
		Short: "Block a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.Transition(args[0], task.StatusBlocked, store.TransitionOpts{
				Actor: "cli", Reason: reason, Blockers: blockers,
			})
			if err != nil {
				return fmt.Errorf("block task: %w", err)
			}
			return printTask(cmd, t)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "block reason")
	cmd.Flags().StringSliceVar(&blockers, "blockers", nil, "blocker descriptions")
	return cmd
}

func newTaskUnblockCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unblock <task-id>",
		Short: "Move a blocked task back to ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.Transition(args[0], task.StatusReady, store.TransitionOpts{Actor: "cli", Reason: "manual_unblock"})
			if err != nil {
				return fmt.Errorf("unblock task: %w", err)
			}
			return printTask(cmd, t)
		},
	}
	return cmd
}

func newTaskDepAddCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep-add <task-id> <dep-id>",
		Short: "Add a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.AddDependency(args[0], args[1])
			if err != nil {
				return fmt.Errorf("add dependency: %w", err)
			}
			return printTask(cmd, t)
		},
	}
	return cmd
}

func newTaskDepRemoveCommand(root *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep-remove <task-id> <dep-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := NewApp(*root)
			if err != nil {
				return err
			}
			t, err := app.Store.RemoveDependency(args[0], args[1])
			if err != nil {
				return fmt.Errorf("remove dependency: %w", err)
			}
			return printTask(cmd, t)
		},
	}
	return cmd
}
