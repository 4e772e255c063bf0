package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var boolPrefs = map[string]bool{
	"desktop_notifications":       true,
	"sound_alerts":                true,
	"email_notifications":         true,
	"notify_on_messages":          true,
	"notify_on_task_assignment":   true,
	"notify_on_critical_triggers": true,
}

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Show or change notification preferences",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print preferences as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			p, err := c.Preferences(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key=value>...",
		Short: "Set preferences, e.g. sound_alerts=false sound_volume=0.3 email_frequency=daily",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parsePrefArgs(args)
			if err != nil {
				return err
			}
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			p, err := c.UpdatePreferences(cmd.Context(), fields)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	})
	return cmd
}

// parsePrefArgs converts key=value pairs into a partial preferences object.
func parsePrefArgs(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		switch {
		case boolPrefs[k]:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = b
		case k == "sound_volume":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = f
		case k == "email_frequency":
			fields[k] = v
		default:
			return nil, fmt.Errorf("unknown preference %q", k)
		}
	}
	return fields, nil
}
