//go:build unix

package instruments

import (
	"errors"
	"os"
	"syscall"
)

// killProcessGroup kills the process and everything it spawned. The pty
// starts the process as a session leader, so its pid is the group id.
func killProcessGroup(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return p.Kill()
}
