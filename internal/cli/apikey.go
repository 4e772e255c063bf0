package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ankittk/agentsync/internal/config"
)

func newApikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the API key that protects the daemon's HTTP API",
	}
	cmd.AddCommand(newApikeyGenerateCmd())
	cmd.AddCommand(newApikeyShowCmd())
	cmd.AddCommand(newApikeyClearCmd())
	return cmd
}

func newApikeyGenerateCmd() *cobra.Command {
	var (
		envFile   string
		printOnly bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a random key and store it as server.api_key in config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			key, err := newAPIKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fprintf(out, "Generated API key:\n\n  %s\n\n", key)

			switch {
			case printOnly:
			case envFile != "":
				if err := appendEnv(envFile, "AGENTSYNC_API_KEY", key); err != nil {
					return err
				}
				fprintf(out, "Appended AGENTSYNC_API_KEY to %s (use: agentsync start --env-file %s)\n", envFile, envFile)
			default:
				if err := config.SetAPIKey(home, key); err != nil {
					return fmt.Errorf("save key: %w", err)
				}
				fprintf(out, "Saved to %s; restart the daemon to apply it.\n", config.Path(home))
			}
			fprintf(out, "Clients send it as header X-API-Key or query ?api_key=. agentsync commands on this machine pick it up automatically.\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Append AGENTSYNC_API_KEY to this env file instead of config.yaml")
	cmd.Flags().BoolVar(&printOnly, "print", false, "Only print the key")
	return cmd
}

func newApikeyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show whether an API key is configured (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := configuredAPIKey(config.MustHomeFrom(cmd.Context()))
			if key == "" {
				fprintf(cmd.OutOrStdout(), "no API key configured\n")
				return nil
			}
			fprintf(cmd.OutOrStdout(), "%s\n", maskKey(key))
			return nil
		},
	}
}

func newApikeyClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove server.api_key from config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			if err := config.SetAPIKey(home, ""); err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "API key removed from %s; restart the daemon to apply it.\n", config.Path(home))
			return nil
		},
	}
}

func newAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}

func appendEnv(path, name, value string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%s=%s\n", name, value); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
