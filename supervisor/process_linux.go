//go:build linux

// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package supervisor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group and arranges
// for it to die if this process dies first, grounded on
// chromium/kill_linux.go's KillAfterParent.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = new(syscall.SysProcAttr)
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
