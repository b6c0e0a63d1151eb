//go:build windows

package daemon

import (
	"os"
	"syscall"
)

// alive reports whether the process exists. os.FindProcess always
// succeeds on Windows, so probe with a zero signal.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Stop kills the process recorded at path. Windows has no SIGTERM
// delivery for unrelated processes, so this is a hard kill.
func Stop(path string) error {
	pid, err := readPID(path)
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
