//go:build unix

package engine

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in its own process group so that a
// kill reaches everything it forks, not just the direct child.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup force-kills the child's process group. Falls back to
// the direct child when the group signal fails.
func killProcessGroup(cmd *exec.Cmd) error {
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return cmd.Process.Kill()
}
