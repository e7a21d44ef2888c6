package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/codefionn/sockrpc/internal/consts"
)

// Stream fallback framing. Datagram sockets preserve message boundaries on
// their own; transports that do not (TCP, pipes) carry each envelope behind
// a 4-byte big-endian length prefix instead.

// ErrFrameTooLarge reports a frame above the configured limit.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds size limit")

// WriteFrame writes payload to w with a 4-byte big-endian length prefix.
// A maxSize of zero applies the default cap.
func WriteFrame(w io.Writer, payload []byte, maxSize int) error {
	if maxSize <= 0 {
		maxSize = consts.BufferSize1MB
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxSize)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed payload from r.
// A maxSize of zero applies the default cap.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = consts.BufferSize1MB
	}
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if int(length) > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
