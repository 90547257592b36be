//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// configureCommand puts the command in its own process group and makes
// cancellation kill the whole group, so a grandchild holding stdout open
// cannot keep Output blocked past the deadline.
func configureCommand(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay
}
