//go:build !windows

package localexec

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// configureProcessGroup puts the child in its own process group so that
// cancellation can reap the whole tree (shell, any descendants it
// forked) rather than just the direct child.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// waitWithCancellation waits for cmd to exit, but on ctx cancellation it
// signals the whole process group (SIGTERM, then SIGKILL after grace)
// instead of only the direct child.
func waitWithCancellation(ctx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		pgid := cmd.Process.Pid
		unix.Kill(-pgid, syscall.SIGTERM)
		select {
		case err := <-done:
			return err
		case <-time.After(grace):
			unix.Kill(-pgid, syscall.SIGKILL)
			return <-done
		}
	}
}
