package cli

import (
	"encoding/json"
	"fmt"

	"github.com/ankittk/agentsync/pkg/client"
	"github.com/spf13/cobra"
)

func newCollabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collab",
		Aliases: []string{"collaboration"},
		Short:   "Inspect and trigger collaborations",
	}
	cmd.AddCommand(newCollabListCmd())
	cmd.AddCommand(newCollabTriggerCmd())
	cmd.AddCommand(newCollabShowCmd())
	cmd.AddCommand(newCollabRmCmd())
	return cmd
}

func newCollabListCmd() *cobra.Command {
	var opts client.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collaborations (newest first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			list, err := c.Collaborations(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fprintf(cmd.OutOrStdout(), "No collaborations.\n")
				return nil
			}
			for _, co := range list {
				fprintf(cmd.OutOrStdout(), "%s  %-11s %-8s %s -> %s  %s\n",
					co.ID, co.Status, co.Priority, co.SourceAgent, co.TargetAgent, co.TriggerReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Filter by source agent")
	cmd.Flags().StringVar(&opts.Target, "target", "", "Filter by target agent")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "Filter by priority")
	cmd.Flags().StringVar(&opts.RuleID, "rule", "", "Filter by rule id")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "Sort key, e.g. -created_at or updated_at")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Max results (0 = server default)")
	return cmd
}

func newCollabTriggerCmd() *cobra.Command {
	var (
		rawCtx string
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "trigger <rule-id>",
		Short: "Manually trigger the collaboration for a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var evCtx json.RawMessage
			if rawCtx != "" {
				if !json.Valid([]byte(rawCtx)) {
					return fmt.Errorf("--context must be valid JSON")
				}
				evCtx = json.RawMessage(rawCtx)
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			co, err := c.TriggerRule(cmd.Context(), args[0], evCtx, wait)
			if err != nil {
				return err
			}
			if !wait {
				fprintf(cmd.OutOrStdout(), "Started collaboration %s (%s)\n", co.ID, co.Status)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), co)
		},
	}
	cmd.Flags().StringVar(&rawCtx, "context", "", "Context as JSON")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the collaboration to finish and print it")
	return cmd
}

func newCollabShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one collaboration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			co, err := c.Collaboration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), co)
		},
	}
}

func newCollabRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a collaboration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if err := c.DeleteCollaboration(cmd.Context(), args[0]); err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
