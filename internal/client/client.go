package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/sockrpc/internal/consts"
	"github.com/codefionn/sockrpc/internal/logger"
	"github.com/codefionn/sockrpc/internal/protocol"
)

var (
	// ErrCancelled is returned by Wait when the caller cancelled the request.
	ErrCancelled = errors.New("request cancelled")
	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("client is closed")
)

// Config holds client configuration
type Config struct {
	// SocketPath is the server's bound socket path
	SocketPath string
	// ResponseSocketDir is where per-request reply sockets are created
	ResponseSocketDir string
	// RequestTimeout is the default timeout for requests that do not
	// declare their own
	RequestTimeout time.Duration
	// MaxPendingRequests caps concurrently outstanding requests
	MaxPendingRequests int
	// MaxMessageSize caps the encoded size of a single datagram
	MaxMessageSize int
	// Logger receives client diagnostics; nil uses the global logger
	Logger *logger.Logger
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		SocketPath:         "",
		ResponseSocketDir:  protocol.DefaultSocketDir(),
		RequestTimeout:     consts.DefaultRequestTimeout,
		MaxPendingRequests: consts.DefaultMaxPendingRequests,
		MaxMessageSize:     consts.MaxDatagramSize,
	}
}

// Client sends requests to a datagram RPC server and correlates the
// responses. It is safe for concurrent use; any number of requests may be
// outstanding at once and resolve independently.
type Client struct {
	config     *Config
	serverAddr *net.UnixAddr
	log        *logger.Logger

	// Request tracking
	pending   map[string]*pendingRequest
	pendingMu sync.Mutex

	// Callbacks
	timeoutCallback func(requestID string, timeout time.Duration)

	// Counters
	sent          atomic.Uint64
	notifications atomic.Uint64
	completed     atomic.Uint64
	timedOut      atomic.Uint64
	cancelled     atomic.Uint64
	lateDiscarded atomic.Uint64

	// Lifecycle
	closed atomic.Bool
	wg     sync.WaitGroup
}

// Stats is a point-in-time snapshot of the client's activity counters.
type Stats struct {
	Sent          uint64
	Notifications uint64
	Completed     uint64
	TimedOut      uint64
	Cancelled     uint64
	LateDiscarded uint64
}

// New creates a client for the server bound at socketPath.
func New(socketPath string) (*Client, error) {
	config := DefaultConfig()
	config.SocketPath = socketPath
	return NewWithConfig(config)
}

// NewWithConfig creates a client with custom configuration.
func NewWithConfig(config *Config) (*Client, error) {
	if config.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}
	if config.ResponseSocketDir == "" {
		config.ResponseSocketDir = protocol.DefaultSocketDir()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = consts.DefaultRequestTimeout
	}
	if config.MaxPendingRequests <= 0 {
		config.MaxPendingRequests = consts.DefaultMaxPendingRequests
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = consts.MaxDatagramSize
	}

	log := config.Logger
	if log == nil {
		log = logger.Global()
	}

	return &Client{
		config:     config,
		serverAddr: &net.UnixAddr{Name: config.SocketPath, Net: "unixgram"},
		log:        log.WithPrefix("client"),
		pending:    make(map[string]*pendingRequest),
	}, nil
}

// SetTimeoutCallback registers a callback invoked whenever a request times
// out, carrying the request id and the deadline that was exceeded. Set it
// before sending requests.
func (c *Client) SetTimeoutCallback(fn func(requestID string, timeout time.Duration)) {
	c.timeoutCallback = fn
}

// PendingRequests returns the number of requests awaiting resolution.
func (c *Client) PendingRequests() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// Stats returns a snapshot of the client's activity counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:          c.sent.Load(),
		Notifications: c.notifications.Load(),
		Completed:     c.completed.Load(),
		TimedOut:      c.timedOut.Load(),
		Cancelled:     c.cancelled.Load(),
		LateDiscarded: c.lateDiscarded.Load(),
	}
}

// Call sends a request and waits for it to resolve. A timeout of zero
// applies the configured default. The context cancels the request when it
// ends first.
func (c *Client) Call(ctx context.Context, command string, args map[string]interface{}, timeout time.Duration) (*protocol.Response, error) {
	h, err := c.Send(command, args, timeout)
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// Send puts a request on the wire and returns a handle to await or cancel
// it. The request binds its own reply socket; the returned handle resolves
// when the response arrives, the timeout elapses, or the caller cancels.
func (c *Client) Send(command string, args map[string]interface{}, timeout time.Duration) (*RequestHandle, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if timeout <= 0 {
		timeout = c.config.RequestTimeout
	}

	req := protocol.NewRequest(command, args)
	req.Timeout = timeout.Seconds()

	replyPath, err := protocol.ReplyAddr(c.config.ResponseSocketDir, req.ID)
	if err != nil {
		return nil, err
	}
	req.ReplyTo = replyPath

	data, err := req.Encode()
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeInternalError,
			"failed to encode request: %v", err)
	}
	if len(data) > c.config.MaxMessageSize {
		return nil, protocol.Errorf(protocol.CodeResourceLimitExceeded,
			"request of %d bytes exceeds maximum message size %d",
			len(data), c.config.MaxMessageSize)
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: replyPath, Net: "unixgram"})
	if err != nil {
		return nil, protocol.Errorf(protocol.CodeSocketError,
			"failed to bind reply socket %s: %v", replyPath, err)
	}

	pr := &pendingRequest{
		id:        req.ID,
		command:   command,
		created:   time.Now(),
		timeout:   timeout,
		replyPath: replyPath,
		conn:      conn,
		done:      make(chan outcome, 1),
	}
	pr.setState(StateCreated)

	c.pendingMu.Lock()
	if c.closed.Load() {
		c.pendingMu.Unlock()
		conn.Close()
		protocol.RemoveSocket(replyPath)
		return nil, ErrClosed
	}
	if len(c.pending) >= c.config.MaxPendingRequests {
		c.pendingMu.Unlock()
		conn.Close()
		protocol.RemoveSocket(replyPath)
		return nil, protocol.Errorf(protocol.CodeResourceLimitExceeded,
			"too many pending requests (limit %d)", c.config.MaxPendingRequests)
	}
	c.pending[req.ID] = pr
	c.pendingMu.Unlock()

	// Send from the reply socket so the datagram's source matches the
	// advertised reply address.
	if _, err := conn.WriteToUnix(data, c.serverAddr); err != nil {
		serr := protocol.Errorf(protocol.CodeSocketError,
			"failed to send request to %s: %v", c.config.SocketPath, err)
		c.resolve(pr, StateCancelled, outcome{err: serr})
		return nil, serr
	}

	pr.setState(StateSent)
	c.sent.Add(1)
	c.log.Debug("sent %s (%s), timeout %s", command, req.ID, timeout)

	pr.timer = time.AfterFunc(timeout, func() {
		c.resolveTimeout(pr)
	})

	c.wg.Add(1)
	go c.readLoop(pr)

	return &RequestHandle{client: c, pending: pr}, nil
}

// Notify sends a fire-and-forget request: no reply address, no pending
// entry, no reply socket. The server runs the handler but sends nothing
// back regardless of outcome.
func (c *Client) Notify(command string, args map[string]interface{}) error {
	if c.closed.Load() {
		return ErrClosed
	}

	req := protocol.NewRequest(command, args)
	data, err := req.Encode()
	if err != nil {
		return protocol.Errorf(protocol.CodeInternalError,
			"failed to encode request: %v", err)
	}
	if len(data) > c.config.MaxMessageSize {
		return protocol.Errorf(protocol.CodeResourceLimitExceeded,
			"request of %d bytes exceeds maximum message size %d",
			len(data), c.config.MaxMessageSize)
	}

	conn, err := net.DialUnix("unixgram", nil, c.serverAddr)
	if err != nil {
		return protocol.Errorf(protocol.CodeSocketError,
			"failed to reach %s: %v", c.config.SocketPath, err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return protocol.Errorf(protocol.CodeSocketError,
			"failed to send notification: %v", err)
	}

	c.notifications.Add(1)
	c.log.Debug("sent notification %s (%s)", command, req.ID)
	return nil
}

// readLoop waits for the correlated response on the request's reply
// socket. Resolution closes the socket, which unblocks the read and ends
// the loop.
func (c *Client) readLoop(pr *pendingRequest) {
	defer c.wg.Done()

	buf := make([]byte, c.config.MaxMessageSize)
	for {
		n, _, err := pr.conn.ReadFromUnix(buf)
		if err != nil {
			// Socket closed by resolution, or a transient read error on
			// an already-resolved request. Either way the loop is done.
			return
		}

		resp, err := protocol.DecodeResponse(buf[:n])
		if err != nil {
			c.log.Warn("dropping undecodable response on %s: %v", pr.replyPath, err)
			continue
		}
		if resp.RequestID != pr.id {
			c.lateDiscarded.Add(1)
			c.log.Warn("dropping response for %s on reply socket of %s", resp.RequestID, pr.id)
			continue
		}

		if !c.resolve(pr, StateCompleted, outcome{resp: resp}) {
			c.lateDiscarded.Add(1)
		}
		return
	}
}

// resolve moves a pending request to a terminal state. Exactly one caller
// wins; later attempts are no-ops, which is what discards late responses
// after a timeout or cancellation.
func (c *Client) resolve(pr *pendingRequest, terminal RequestState, o outcome) bool {
	won := false
	pr.once.Do(func() {
		won = true
		pr.setState(terminal)
		pr.done <- o

		switch terminal {
		case StateCompleted:
			c.completed.Add(1)
		case StateTimedOut:
			c.timedOut.Add(1)
		case StateCancelled:
			c.cancelled.Add(1)
		}

		if pr.timer != nil {
			pr.timer.Stop()
		}

		c.pendingMu.Lock()
		delete(c.pending, pr.id)
		c.pendingMu.Unlock()

		pr.conn.Close()
		protocol.RemoveSocket(pr.replyPath)
	})
	return won
}

func (c *Client) resolveTimeout(pr *pendingRequest) {
	serr := protocol.NewError(protocol.CodeHandlerTimeout).
		WithData("request_id", pr.id).
		WithData("timeout_seconds", pr.timeout.Seconds())

	if c.resolve(pr, StateTimedOut, outcome{err: serr}) {
		c.log.Warn("request %s (%s) timed out after %s", pr.command, pr.id, pr.timeout)
		if c.timeoutCallback != nil {
			go c.timeoutCallback(pr.id, pr.timeout)
		}
	}
}

// Close resolves every outstanding request as cancelled, waits for the
// reader goroutines to drain, and marks the client unusable.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.pendingMu.Lock()
	remaining := make([]*pendingRequest, 0, len(c.pending))
	for _, pr := range c.pending {
		remaining = append(remaining, pr)
	}
	c.pendingMu.Unlock()

	for _, pr := range remaining {
		c.resolve(pr, StateCancelled, outcome{err: ErrClosed})
	}

	c.wg.Wait()
	return nil
}
