package protocol

import (
	"fmt"
	"os"
	"path/filepath"
)

// maxSocketPathLen is the portable limit for a sockaddr_un path.
const maxSocketPathLen = 104

// DefaultSocketDir returns the directory reply sockets are created in.
func DefaultSocketDir() string {
	return os.TempDir()
}

// ReplyAddr derives the reply socket path for a request: process identity
// plus the request's unique id keeps concurrent requests from colliding
// without any shared response channel.
func ReplyAddr(dir, requestID string) (string, error) {
	if dir == "" {
		dir = DefaultSocketDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("sockrpc-%d-%s.sock", os.Getpid(), requestID))
	if len(path) > maxSocketPathLen {
		return "", fmt.Errorf("protocol: reply address %q exceeds %d bytes", path, maxSocketPathLen)
	}
	return path, nil
}

// RemoveSocket deletes a socket file, ignoring already-gone paths.
func RemoveSocket(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
