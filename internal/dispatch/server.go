package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/sockrpc/internal/config"
	"github.com/codefionn/sockrpc/internal/consts"
	"github.com/codefionn/sockrpc/internal/logger"
	"github.com/codefionn/sockrpc/internal/manifest"
	"github.com/codefionn/sockrpc/internal/protocol"
	"github.com/codefionn/sockrpc/internal/socketutil"
)

// Server owns the bound datagram socket and dispatches each received
// request to a registered handler under the request's deadline.
type Server struct {
	cfg      *config.Config
	registry *Registry
	engine   *manifest.Engine
	log      *logger.Logger

	conn           *net.UnixConn
	socketPath     string
	defaultTimeout time.Duration

	// Handler concurrency gate; holding a slot means a handler is
	// executing, including handlers whose caller already gave up.
	slots chan struct{}

	// Counters
	received  atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	timeouts  atomic.Uint64
	completed atomic.Uint64

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Stats is a point-in-time snapshot of the server's activity counters.
type Stats struct {
	Received  uint64
	Dropped   uint64
	Rejected  uint64
	Timeouts  uint64
	Completed uint64
}

// NewServer creates a dispatch server. The manifest engine may be nil, in
// which case routing consults only the handler registry and arguments pass
// through unvalidated.
func NewServer(cfg *config.Config, registry *Registry, engine *manifest.Engine) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if registry == nil {
		registry = NewRegistry()
	}

	maxHandlers := cfg.MaxConcurrentHandlers
	if maxHandlers <= 0 {
		maxHandlers = consts.DefaultMaxConcurrentHandlers
	}
	defaultTimeout := time.Duration(cfg.DefaultTimeout * float64(time.Second))
	if defaultTimeout <= 0 {
		defaultTimeout = consts.DefaultRequestTimeout
	}

	return &Server{
		cfg:            cfg,
		registry:       registry,
		engine:         engine,
		log:            logger.Global().WithPrefix("dispatch"),
		defaultTimeout: defaultTimeout,
		slots:          make(chan struct{}, maxHandlers),
		stopChan:       make(chan struct{}),
	}, nil
}

// Registry returns the server's handler registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// SocketPath returns the bound socket path once Start has succeeded.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Stats returns a snapshot of the server's activity counters.
func (s *Server) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Dropped:   s.dropped.Load(),
		Rejected:  s.rejected.Load(),
		Timeouts:  s.timeouts.Load(),
		Completed: s.completed.Load(),
	}
}

// Start binds the configured socket path and begins receiving datagrams.
// It returns once the receive loop is running; Stop shuts it down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	path, err := socketutil.ExpandPath(s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("invalid socket path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	if s.cfg.CleanupOnStart {
		if err := socketutil.RemoveStale(path); err != nil {
			return fmt.Errorf("failed to clean up socket path: %w", err)
		}
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", path, err)
	}
	s.conn = conn
	s.socketPath = path

	if s.cfg.SocketPermissions != "" {
		mode, err := s.cfg.FileMode()
		if err != nil {
			conn.Close()
			os.Remove(path)
			return fmt.Errorf("invalid socket permissions: %w", err)
		}
		if err := os.Chmod(path, mode); err != nil {
			s.log.Warn("failed to set permissions on %s: %v", path, err)
		}
	}

	s.wg.Add(1)
	go s.receiveLoop(ctx)

	s.log.Info("serving on %s (max %d concurrent handlers)", path, cap(s.slots))
	return nil
}

// Stop shuts the server down: no more datagrams are accepted and in-flight
// handlers are waited for. Safe to call more than once.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.log.Info("stopping")
		close(s.stopChan)
		if s.conn != nil {
			s.conn.Close()
		}
		s.wg.Wait()

		if s.cfg.CleanupOnShutdown && s.socketPath != "" {
			if err := protocol.RemoveSocket(s.socketPath); err != nil {
				s.log.Warn("failed to remove socket %s: %v", s.socketPath, err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.log.Info("stopped")
	})
	return nil
}

// receiveLoop reads one datagram at a time and hands each off to its own
// goroutine, so a slow handler never stalls the socket.
func (s *Server) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	bufSize := s.cfg.MaxMessageSize
	if bufSize <= 0 {
		bufSize = consts.MaxDatagramSize
	}
	buf := make([]byte, bufSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		// Poll with a deadline so stop signals are noticed promptly.
		s.conn.SetReadDeadline(time.Now().Add(consts.ReceivePollInterval))
		n, _, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("receive error: %v", err)
			continue
		}
		if n == 0 {
			// Liveness probes are empty datagrams.
			continue
		}

		s.received.Add(1)
		data := append([]byte(nil), buf[:n]...)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleDatagram(ctx, data)
		}()
	}
}

// handleDatagram decodes, routes, validates and executes one request.
func (s *Server) handleDatagram(ctx context.Context, data []byte) {
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		s.dropped.Add(1)
		// Malformed input is only answerable when the raw payload still
		// yields a reply address.
		if replyTo := protocol.PeekReplyTo(data); replyTo != "" {
			s.log.Warn("undecodable request from %s: %v", replyTo, err)
			s.deliver(replyTo, protocol.NewErrorResponse("", protocol.Errorf(
				protocol.CodeParseError, "failed to decode request: %v", err)))
		} else {
			s.log.Debug("dropping undecodable %d-byte datagram: %v", len(data), err)
		}
		return
	}

	if serr := req.Validate(); serr != nil {
		s.rejected.Add(1)
		s.respond(req, protocol.NewErrorResponse(req.ID, serr))
		return
	}

	s.log.Debug("request %s (%s)", req.Command, req.ID)

	handler, ok := s.registry.Lookup(req.Command)
	if !ok {
		s.rejected.Add(1)
		s.respond(req, protocol.NewErrorResponse(req.ID,
			protocol.NewError(protocol.CodeMethodNotFound).WithData("command", req.Command)))
		return
	}

	args := req.Args
	if s.engine != nil {
		validated, serr := s.engine.ValidateRequest(req.Command, req.Args)
		if serr != nil {
			s.rejected.Add(1)
			s.respond(req, protocol.NewErrorResponse(req.ID, serr))
			return
		}
		args = validated
	}

	// Gate handler execution; a full gate rejects instead of queueing so
	// a burst cannot build an unbounded backlog.
	select {
	case s.slots <- struct{}{}:
	default:
		s.rejected.Add(1)
		s.respond(req, protocol.NewErrorResponse(req.ID, protocol.Errorf(
			protocol.CodeResourceLimitExceeded,
			"handler concurrency limit %d reached", cap(s.slots))))
		return
	}

	s.execute(ctx, req, handler, args)
}

type handlerOutcome struct {
	result interface{}
	err    *protocol.StructuredError
}

// execute races the handler against the request's deadline. Whichever
// finishes first determines the response; the loser's result is discarded.
func (s *Server) execute(ctx context.Context, req *protocol.Request, handler Handler, args map[string]interface{}) {
	timeout := req.TimeoutDuration(s.defaultTimeout)
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan handlerOutcome, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("handler %s (%s) panicked: %v\n%s", req.Command, req.ID, r, debug.Stack())
				done <- handlerOutcome{err: protocol.Errorf(
					protocol.CodeInternalError, "handler panic: %v", r)}
			}
		}()
		result, herr := handler(hctx, args)
		done <- handlerOutcome{result: result, err: herr}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			s.respond(req, protocol.NewErrorResponse(req.ID, o.err))
			return
		}
		s.completed.Add(1)
		s.checkResult(req.Command, o.result)
		s.respond(req, protocol.NewResult(req.ID, o.result))

	case <-hctx.Done():
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			s.timeouts.Add(1)
			s.log.Warn("handler %s (%s) exceeded %s", req.Command, req.ID, timeout)
			s.respond(req, protocol.NewErrorResponse(req.ID,
				protocol.NewError(protocol.CodeHandlerTimeout).
					WithData("request_id", req.ID).
					WithData("timeout_seconds", timeout.Seconds())))
			return
		}
		// Shutdown cancelled the handler context.
		s.respond(req, protocol.NewErrorResponse(req.ID,
			protocol.NewError(protocol.CodeServiceUnavailable)))
	}
}

// checkResult validates a handler result against the manifest's declared
// response shape. Advisory: a mismatch is logged, delivery proceeds.
func (s *Server) checkResult(command string, result interface{}) {
	if s.engine == nil {
		return
	}
	if serr := s.engine.ValidateResponse(command, result); serr != nil {
		s.log.Warn("response for %s fails its declared shape: %v", command, serr)
	}
}

// respond sends a response when the request asked for one.
func (s *Server) respond(req *protocol.Request, resp *protocol.Response) {
	if !req.ExpectsReply() {
		return
	}
	s.deliver(req.ReplyTo, resp)
}

// deliver encodes and sends a response datagram. Failure is logged and
// swallowed: the reply socket disappearing is the caller's business, not
// grounds to disturb other requests.
func (s *Server) deliver(replyTo string, resp *protocol.Response) {
	data, err := resp.Encode()
	if err != nil {
		s.log.Error("failed to encode response %s: %v", resp.RequestID, err)
		return
	}
	if s.cfg.MaxMessageSize > 0 && len(data) > s.cfg.MaxMessageSize {
		oversize := protocol.NewErrorResponse(resp.RequestID, protocol.Errorf(
			protocol.CodeResourceLimitExceeded,
			"response of %d bytes exceeds maximum message size %d",
			len(data), s.cfg.MaxMessageSize))
		if data, err = oversize.Encode(); err != nil {
			s.log.Error("failed to encode oversize notice for %s: %v", resp.RequestID, err)
			return
		}
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: replyTo, Net: "unixgram"})
	if err != nil {
		s.log.Warn("cannot reach reply address %s: %v", replyTo, err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		s.log.Warn("failed to deliver response to %s: %v", replyTo, err)
	}
}
