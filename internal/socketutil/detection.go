// Package socketutil provides shared helpers for detecting live datagram
// servers and cleaning up the socket files they leave behind.
package socketutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DetectionTimeout bounds the liveness probe.
const DetectionTimeout = 1 * time.Second

// ExpandPath expands a leading ~ to the user's home directory and makes
// the result absolute.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty socket path")
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~ in %s: %w", path, err)
		}
		path = filepath.Join(home, path[1:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

// DetectServer reports whether a live datagram server is bound at path.
// On platforms without Unix sockets this is always false.
func DetectServer(path string) bool {
	expanded, err := ExpandPath(path)
	if err != nil {
		return false
	}
	return detectServer(expanded)
}

// RemoveStale deletes the socket file at path when nothing is serving
// there. Regular files are left alone and an active server is reported as
// an error so the caller does not bind over it.
func RemoveStale(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}

	stat, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", expanded, err)
	}
	if stat.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists but is not a socket", expanded)
	}

	if detectServer(expanded) {
		return fmt.Errorf("a server is already active on %s", expanded)
	}

	if err := os.Remove(expanded); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket %s: %w", expanded, err)
	}
	return nil
}
