//go:build windows

package runner

import "os/exec"

// configureCommand relies on the default kill; WaitDelay still bounds the
// wait for pipes held by descendants.
func configureCommand(cmd *exec.Cmd) {
	cmd.WaitDelay = waitDelay
}
