//go:build !windows

package daemon

import "syscall"

// alive reports whether the process exists. Signal 0 tests existence
// without delivering a signal.
func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Stop sends SIGTERM to the process recorded at path.
func Stop(path string) error {
	pid, err := readPID(path)
	if err != nil {
		return err
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}
