//go:build windows

package localexec

import (
	"context"
	"os/exec"
	"time"
)

// configureProcessGroup is a no-op on windows; there is no POSIX process
// group to join, and the spec's deployment target is Linux/macOS.
func configureProcessGroup(cmd *exec.Cmd) {}

// waitWithCancellation falls back to killing the direct child only.
func waitWithCancellation(ctx context.Context, cmd *exec.Cmd, grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cmd.Process.Kill()
		return <-done
	}
}
