package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv names the environment variable that relocates the home directory.
const HomeEnv = "AGENTSYNC_HOME"

type homeKey struct{}

// WithHome attaches the resolved home directory to ctx for subcommands.
func WithHome(ctx context.Context, home string) context.Context {
	return context.WithValue(ctx, homeKey{}, home)
}

// HomeFrom returns the home directory attached by WithHome.
func HomeFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(homeKey{}).(string)
	return s, ok
}

// MustHomeFrom is HomeFrom for commands that run after the root pre-run hook.
func MustHomeFrom(ctx context.Context) string {
	if h, ok := HomeFrom(ctx); ok && h != "" {
		return h
	}
	panic("agentsync home missing from context")
}

// ResolveHome picks the home directory: override, then $AGENTSYNC_HOME, then
// ~/.agentsync. A leading "~/" in either setting expands to the user's home.
func ResolveHome(override string) (string, error) {
	for _, v := range []string{override, os.Getenv(HomeEnv)} {
		if v = strings.TrimSpace(v); v != "" {
			return expandTilde(v)
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory")
	}
	return filepath.Join(home, ".agentsync"), nil
}

// Path returns the config file location under home.
func Path(home string) string {
	return filepath.Join(home, FileName)
}

func expandTilde(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return filepath.Clean(p), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine user home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
