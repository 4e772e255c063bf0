// Package sandbox wraps external commands in a minimal bubblewrap jail.
package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
)

// systemBinds are mounted read-only so the wrapped binary can load its libraries.
var systemBinds = []string{"/usr", "/lib", "/lib64", "/bin", "/etc"}

// WrapCommand returns an *exec.Cmd that runs binary with args. If root is non-empty and
// bubblewrap (bwrap) is available on Linux, the command runs with only root writable,
// a private /tmp and its own pid namespace. Elsewhere the command runs unwrapped.
func WrapCommand(ctx context.Context, root, binary string, args []string) *exec.Cmd {
	if root == "" || runtime.GOOS != "linux" {
		return exec.CommandContext(ctx, binary, args...)
	}
	bwrap, err := exec.LookPath("bwrap")
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return exec.CommandContext(ctx, binary, args...)
	}
	return exec.CommandContext(ctx, bwrap, BwrapArgs(absRoot, binary, args)...)
}

// BwrapArgs builds the bubblewrap argument list for WrapCommand.
func BwrapArgs(root, binary string, args []string) []string {
	out := []string{"--bind", root, root}
	for _, p := range systemBinds {
		out = append(out, "--ro-bind-try", p, p)
	}
	out = append(out,
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
		"--unshare-pid",
		"--die-with-parent",
		"--chdir", root,
		"--", binary,
	)
	return append(out, args...)
}
