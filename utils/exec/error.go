package exec

import (
	"os/exec"
	"syscall"
)

// ExitStatus extracts the process exit code from an error returned by a
// finished command.
func ExitStatus(err error) (int, bool) {
	exitErr, ok := err.(*exec.ExitError)
	if ok {
		waitStatus, ok := exitErr.ProcessState.Sys().(syscall.WaitStatus)
		if ok {
			return waitStatus.ExitStatus(), true
		}
	}
	return 0, false
}
