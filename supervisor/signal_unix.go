//go:build !windows

// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package supervisor

import (
	"os/exec"
	"syscall"
)

// terminateProcessGroup sends SIGTERM to the child's entire process
// group (ForceProcessGroup state, spec §4.7), grounded on
// original_source/choreographer's SIGTERM handler in the Unix pipe
// wrapper.
func terminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// killProcessGroup sends SIGKILL to the child's entire process group
// (ForceKill state, spec §4.7).
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
