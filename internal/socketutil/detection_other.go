//go:build !linux && !darwin

package socketutil

import (
	"github.com/codefionn/sockrpc/internal/logger"
)

// detectServer always reports false where Unix domain sockets are not
// supported.
func detectServer(path string) bool {
	logger.Debug("Socket detection skipped: Unix sockets not supported on this platform")
	return false
}
