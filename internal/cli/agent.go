package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect agents",
	}
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentJournalCmd())
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents with their presence",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			agents, err := c.Agents(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range agents {
				fprintf(cmd.OutOrStdout(), "- %s (%s) %s\n", a.ID, a.DisplayName, a.Presence)
			}
			return nil
		},
	}
}

func newAgentJournalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal <agent-id>",
		Short: "Show the tail of an agent's collaboration journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			j, err := c.Journal(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if strings.TrimSpace(j) == "" {
				fprintf(cmd.OutOrStdout(), "No journal entries.\n")
				return nil
			}
			fprintf(cmd.OutOrStdout(), "%s\n", strings.TrimRight(j, "\n"))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max bytes to return (0 = server default)")
	return cmd
}

func newBriefCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Show or replace the shared brief included in every collaboration prompt",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the shared brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			b, err := c.Brief(cmd.Context())
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "%s\n", b)
			return nil
		},
	})

	var file string
	set := &cobra.Command{
		Use:   "set [text]",
		Short: "Replace the shared brief (from an argument, --file, or stdin with --file -)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			switch {
			case len(args) == 1:
				content = args[0]
			case file == "-":
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(b)
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				content = string(b)
			default:
				return errors.New("provide the brief as an argument or with --file")
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if err := c.SetBrief(cmd.Context(), content); err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "Brief updated\n")
			return nil
		},
	}
	set.Flags().StringVar(&file, "file", "", "Read the brief from a file (- for stdin)")
	cmd.AddCommand(set)
	return cmd
}
