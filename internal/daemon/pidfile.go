// Package daemon provides single-instance locking for the API daemon via
// a PID file. Only one prarena serve process should run per database: two
// daemons would each hold independent in-memory run state and race on the
// run archive.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrAlreadyRunning is returned by Acquire when a live daemon holds the
// PID file.
var ErrAlreadyRunning = errors.New("daemon already running")

// PIDFile is an acquired PID-file lock. Release it on shutdown.
type PIDFile struct {
	path string
}

// Acquire writes the current process's PID to path after verifying no
// live process holds it. A stale file left by a crashed daemon is
// silently replaced.
func Acquire(path string) (*PIDFile, error) {
	if pid, ok := probe(path); ok {
		return nil, fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	return &PIDFile{path: path}, nil
}

// Release removes the PID file. Safe to call if the file is already gone.
func (p *PIDFile) Release() error {
	err := os.Remove(p.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Path returns the PID file location.
func (p *PIDFile) Path() string {
	return p.path
}

// Running reports the PID recorded at path and whether that process is
// still alive. A missing or unreadable file reports not running.
func Running(path string) (int, bool) {
	return probe(path)
}

func probe(path string) (int, bool) {
	pid, err := readPID(path)
	if err != nil {
		return 0, false
	}
	return pid, alive(pid)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	return pid, nil
}
