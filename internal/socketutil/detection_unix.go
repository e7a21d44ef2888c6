//go:build linux || darwin

package socketutil

import (
	"net"
	"os"
	"time"

	"github.com/codefionn/sockrpc/internal/logger"
)

// detectServer probes path for a bound datagram listener. A zero-byte
// datagram is enough: delivery succeeds only when a live socket is
// reading, and servers discard empty payloads.
func detectServer(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("Error checking socket file %s: %v", path, err)
		}
		return false
	}
	if stat.Mode()&os.ModeSocket == 0 {
		logger.Debug("File exists but is not a socket: %s", path)
		return false
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		logger.Debug("Socket exists but nothing is bound at %s: %v", path, err)
		return false
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(DetectionTimeout))
	if _, err := conn.Write([]byte{}); err != nil {
		logger.Debug("Socket exists but probe failed at %s: %v", path, err)
		return false
	}
	return true
}
