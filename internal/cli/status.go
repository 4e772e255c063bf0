package cli

import (
	"fmt"
	"strings"

	"github.com/ankittk/agentsync/internal/config"
	"github.com/ankittk/agentsync/internal/daemon"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agentsync daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := daemon.Status(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "agentsync not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "agentsync running (pid %d, addr %s)\n", st.PID, st.Addr)

			// best effort: the daemon may still be starting
			c, err := apiClient(cmd)
			if err != nil {
				return nil
			}
			if keys, err := c.InFlight(cmd.Context()); err == nil {
				if len(keys) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No collaborations in flight")
				} else {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "In flight: %s\n", strings.Join(keys, ", "))
				}
			}
			return nil
		},
	}
	return cmd
}
