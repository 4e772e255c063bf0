package cli

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ankittk/agentsync/internal/config"
	"github.com/ankittk/agentsync/internal/inference"
	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/internal/store"
	"github.com/ankittk/agentsync/pkg/models"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify configuration and runtime dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			problems := doctorChecks(home, exec.LookPath)
			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}

func doctorChecks(home string, lookPath func(string) (string, error)) []string {
	cfg, err := config.Load(home)
	if err != nil {
		return []string{"config: " + err.Error()}
	}

	var problems []string
	if _, err := inference.New(cfg.Inference); err != nil {
		problems = append(problems, fmt.Sprintf("inference provider %q: %v", cfg.Inference.Provider, err))
	}
	if cfg.Database.Driver != "postgres" {
		if err := store.EnsureSchema(home); err != nil {
			problems = append(problems, "sqlite store: "+err.Error())
		}
	}
	if cfg.Notify.DesktopHost == "exec" {
		host := notify.NewExecHost()
		host.LookPath = lookPath
		if host.Permission() != models.PermissionGranted {
			problems = append(problems, "desktop_host=exec: notification tool (notify-send or osascript) not found on PATH")
		}
	}
	if cfg.Notify.AudioPlayer == "exec" {
		bin := strings.Fields(cfg.Notify.AudioCommand)
		if len(bin) == 0 {
			problems = append(problems, "audio_player=exec: audio_command is empty")
		} else if _, err := lookPath(bin[0]); err != nil {
			problems = append(problems, fmt.Sprintf("audio_player=exec: %s not found on PATH", bin[0]))
		}
	}
	return problems
}
