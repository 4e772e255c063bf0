package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ankittk/agentsync/internal/config"
	"github.com/ankittk/agentsync/internal/daemon"
	"github.com/ankittk/agentsync/pkg/client"
	"github.com/spf13/cobra"
)

var errDaemonDown = errors.New("agentsync is not running (start it with: agentsync start)")

// apiClient builds a client for the daemon named by --addr, or the one
// recorded under the home directory.
func apiClient(cmd *cobra.Command) (*client.Client, error) {
	key := flagString(cmd, "api-key")
	if key == "" {
		key = configuredAPIKey(config.MustHomeFrom(cmd.Context()))
	}
	addr := flagString(cmd, "addr")
	if addr == "" {
		st, err := daemon.Status(cmd.Context(), config.MustHomeFrom(cmd.Context()))
		if err != nil {
			return nil, err
		}
		if !st.Running || st.Addr == "unknown" {
			return nil, errDaemonDown
		}
		addr = st.Addr
	}
	return client.New(baseURL(addr), key), nil
}

// configuredAPIKey is the daemon's key from AGENTSYNC_API_KEY or config.yaml.
func configuredAPIKey(home string) string {
	if v := strings.TrimSpace(os.Getenv("AGENTSYNC_API_KEY")); v != "" {
		return v
	}
	cfg, err := config.Load(home)
	if err != nil {
		return ""
	}
	return cfg.Server.APIKey
}

func flagString(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}

// baseURL turns a listen address into a dialable URL.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	} else if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fprintf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
