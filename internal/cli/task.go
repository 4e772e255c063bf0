package cli

import (
	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the shared task list",
	}
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskToggleCmd())
	cmd.AddCommand(newTaskAssignCmd())
	cmd.AddCommand(newTaskRmCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List shared tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			tasks, err := c.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fprintf(cmd.OutOrStdout(), "No tasks.\n")
				return nil
			}
			for _, t := range tasks {
				box := "[ ]"
				if t.Completed {
					box = "[x]"
				}
				assignee := "unassigned"
				if t.AssignedTo != nil {
					assignee = *t.AssignedTo
				}
				fprintf(cmd.OutOrStdout(), "%s %s  %s (%s)\n", box, t.ID, t.Title, assignee)
			}
			return nil
		},
	}
}

func newTaskAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <title>",
		Short: "Add a shared task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.AddTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "Added task %s\n", t.ID)
			return nil
		},
	}
}

func newTaskToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle a task's completed flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.ToggleTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "Task %s completed=%t\n", t.ID, t.Completed)
			return nil
		},
	}
}

func newTaskAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> [agent-id]",
		Short: "Assign a task to an agent (omit the agent to clear)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := ""
			if len(args) == 2 {
				agent = args[1]
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.AssignTask(cmd.Context(), args[0], agent)
			if err != nil {
				return err
			}
			if t.AssignedTo == nil {
				fprintf(cmd.OutOrStdout(), "Task %s unassigned\n", t.ID)
				return nil
			}
			fprintf(cmd.OutOrStdout(), "Assigned task %s to %s\n", t.ID, *t.AssignedTo)
			return nil
		},
	}
}

func newTaskRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if err := c.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		},
	}
}
