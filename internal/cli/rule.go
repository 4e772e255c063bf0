package cli

import (
	"encoding/json"
	"fmt"

	"github.com/ankittk/agentsync/pkg/models"
	"github.com/spf13/cobra"
)

func newRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "List and toggle trigger rules",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			rules, err := c.Rules(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range rules {
				state := "on "
				if !r.Enabled {
					state = "off"
				}
				fprintf(cmd.OutOrStdout(), "[%s] %-16s %s -> %s on %s (%s) %s\n",
					state, r.ID, r.SourceAgent, r.TargetAgent, r.TriggerType, r.Priority, r.ActionLabel)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <rule-id>",
		Short: "Enable or disable a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			r, err := c.ToggleRule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "Rule %s enabled=%t\n", r.ID, r.Enabled)
			return nil
		},
	})
	return cmd
}

func newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Report agent events",
	}
	var (
		source, target, trigger, rawCtx string
	)
	send := &cobra.Command{
		Use:   "send",
		Short: "Send an agent event for rule matching",
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := models.Event{SourceAgent: source, TargetAgent: target, TriggerType: trigger}
			if rawCtx != "" {
				if !json.Valid([]byte(rawCtx)) {
					return fmt.Errorf("--context must be valid JSON")
				}
				ev.Context = json.RawMessage(rawCtx)
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			ack, err := c.SendEvent(cmd.Context(), ev)
			if err != nil {
				return err
			}
			if !ack.Matched {
				fprintf(cmd.OutOrStdout(), "Accepted (no matching rule)\n")
				return nil
			}
			fprintf(cmd.OutOrStdout(), "Accepted, matched rule %s\n", ack.RuleID)
			return nil
		},
	}
	send.Flags().StringVar(&source, "source", "", "Source agent id")
	send.Flags().StringVar(&target, "target", "", "Target agent id")
	send.Flags().StringVar(&trigger, "trigger", "", "Trigger type")
	send.Flags().StringVar(&rawCtx, "context", "", "Event context as JSON")
	_ = send.MarkFlagRequired("source")
	_ = send.MarkFlagRequired("target")
	_ = send.MarkFlagRequired("trigger")
	cmd.AddCommand(send)
	return cmd
}
