// Package pidfile manages the daemon's PID file.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Pidfile records which process owns the daemon's socket.
type Pidfile struct {
	path string
}

// New creates a PID file instance for path. Nothing is written until
// Acquire or Write runs.
func New(path string) *Pidfile {
	return &Pidfile{
		path: path,
	}
}

// Acquire claims the PID file for the current process. An existing file
// naming a live process means another daemon instance owns it; a stale
// file is taken over silently.
func (p *Pidfile) Acquire() error {
	if pid, err := p.Read(); err == nil && pid > 0 && processAlive(pid) {
		return fmt.Errorf("already running with pid %d (pidfile %s)", pid, p.path)
	}
	return p.Write()
}

// Write writes the current PID, creating the parent directory if needed.
func (p *Pidfile) Write() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	content := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(p.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// Read returns the PID recorded in the file.
func (p *Pidfile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in pidfile: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file, ignoring an already-missing one.
func (p *Pidfile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Path returns the PID file path.
func (p *Pidfile) Path() string {
	return p.path
}

// Exists reports whether the PID file is present.
func (p *Pidfile) Exists() bool {
	_, err := os.Stat(p.path)
	return !os.IsNotExist(err)
}

// processAlive probes a PID with signal 0. EPERM still means the process
// exists, just under another user.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
