// Package process provides liveness checks for OS processes, used by
// the pid file and the daemon control commands.
package process

import (
	"os"
	"syscall"
)

// Alive reports whether a process with the given pid exists. Signal 0
// probes existence without delivering anything; EPERM means the process
// exists but belongs to another user, which still counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}
