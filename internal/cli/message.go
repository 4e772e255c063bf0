package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Chat with agents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the message log",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			msgs, err := c.Messages(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fprintf(cmd.OutOrStdout(), "%s  %s -> %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.From, m.To, m.Text)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "send <agent-id> <text>...",
		Short: "Send a message to an agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			m, err := c.SendMessage(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "Sent to %s (reply arrives shortly)\n", m.To)
			return nil
		},
	})
	return cmd
}
