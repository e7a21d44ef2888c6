package consts

import "time"

// Datagram and frame sizes
const (
	// MaxDatagramSize is the largest envelope accepted on the wire by default.
	// Must stay below the kernel's SO_SNDBUF for unixgram sockets.
	MaxDatagramSize = 64 * 1024
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte, the frame codec's default cap for
	// stream transports
	BufferSize1MB = 1024 * 1024
)

// Timeouts for request processing
const (
	// DefaultRequestTimeout bounds a request when the caller does not
	// supply one
	DefaultRequestTimeout = 30 * time.Second
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
	// ReceivePollInterval is how long the dispatch loop blocks in a
	// single read before re-checking its stop signal
	ReceivePollInterval = 1 * time.Second
)

// Concurrency and resource limits
const (
	// DefaultMaxConcurrentHandlers caps handler executions running at once
	DefaultMaxConcurrentHandlers = 64
	// DefaultMaxPendingRequests caps outstanding client-side requests
	DefaultMaxPendingRequests = 256
)
