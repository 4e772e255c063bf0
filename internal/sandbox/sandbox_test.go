package sandbox

import (
	"context"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
)

func TestWrapCommand_noRootRunsDirectly(t *testing.T) {
	cmd := WrapCommand(context.Background(), "", "echo", []string{"hi"})
	if !slices.Equal(cmd.Args, []string{"echo", "hi"}) {
		t.Fatalf("args = %v", cmd.Args)
	}
}

func TestWrapCommand_wrapsOnLinuxWithBwrap(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("bubblewrap is Linux only")
	}
	root := t.TempDir()
	cmd := WrapCommand(context.Background(), root, "my-model", []string{"--json"})
	if filepath.Base(cmd.Path) != "bwrap" {
		t.Skip("bwrap not installed")
	}
	if got := cmd.Args[len(cmd.Args)-3:]; !slices.Equal(got, []string{"--", "my-model", "--json"}) {
		t.Fatalf("tail args = %v", got)
	}
}

func TestBwrapArgs(t *testing.T) {
	args := BwrapArgs("/srv/agentsync", "model", []string{"-q"})
	if !slices.Equal(args[:3], []string{"--bind", "/srv/agentsync", "/srv/agentsync"}) {
		t.Fatalf("root bind = %v", args[:3])
	}
	if !slices.Contains(args, "--unshare-pid") || !slices.Contains(args, "--die-with-parent") {
		t.Fatalf("missing isolation flags: %v", args)
	}
	i := slices.Index(args, "--")
	if i < 0 || !slices.Equal(args[i+1:], []string{"model", "-q"}) {
		t.Fatalf("command tail = %v", args)
	}
	if slices.Contains(args, "--ro-bind") {
		t.Fatal("system binds should tolerate missing paths (--ro-bind-try)")
	}
}
