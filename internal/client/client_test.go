package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/sockrpc/internal/protocol"
)

// shortTempDir avoids t.TempDir here: socket paths are capped at 104
// bytes and the per-test directory names are long enough to overflow.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "rpc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testServer is a minimal datagram peer: it decodes requests and answers
// through the handler, replying to the reply_to address when present.
type testServer struct {
	path    string
	conn    *net.UnixConn
	handler func(*protocol.Request) *protocol.Response
	closed  chan struct{}
	wg      sync.WaitGroup
}

func startTestServer(t *testing.T, handler func(*protocol.Request) *protocol.Response) *testServer {
	t.Helper()
	path := filepath.Join(shortTempDir(t), "srv.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)

	s := &testServer{
		path:    path,
		conn:    conn,
		handler: handler,
		closed:  make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.stop)
	return s
}

func (s *testServer) serve() {
	defer s.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, _, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}

		data := append([]byte(nil), buf[:n]...)
		req, err := protocol.DecodeRequest(data)
		if err != nil {
			continue
		}

		s.wg.Add(1)
		go func(req *protocol.Request) {
			defer s.wg.Done()
			resp := s.handler(req)
			if resp == nil || req.ReplyTo == "" {
				return
			}
			out, err := resp.Encode()
			if err != nil {
				return
			}
			reply, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: req.ReplyTo, Net: "unixgram"})
			if err != nil {
				return
			}
			defer reply.Close()
			reply.Write(out)
		}(req)
	}
}

func (s *testServer) stop() {
	close(s.closed)
	s.conn.Close()
	s.wg.Wait()
	os.Remove(s.path)
}

func echoHandler(req *protocol.Request) *protocol.Response {
	return protocol.NewResult(req.ID, req.Args)
}

func newTestClient(t *testing.T, s *testServer, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SocketPath = s.path
	cfg.ResponseSocketDir = shortTempDir(t)
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallRoundTrip(t *testing.T) {
	s := startTestServer(t, echoHandler)
	c := newTestClient(t, s, nil)

	resp, err := c.Call(context.Background(), "echo",
		map[string]interface{}{"text": "hello"}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.Success)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result should be the echoed args")
	assert.Equal(t, "hello", result["text"])
	assert.Equal(t, 0, c.PendingRequests())
}

func TestCallTimeout(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		time.Sleep(2 * time.Second)
		return echoHandler(req)
	})
	c := newTestClient(t, s, nil)

	type timeoutEvent struct {
		id      string
		timeout time.Duration
	}
	events := make(chan timeoutEvent, 1)
	c.SetTimeoutCallback(func(id string, timeout time.Duration) {
		events <- timeoutEvent{id, timeout}
	})

	start := time.Now()
	_, err := c.Call(context.Background(), "slow", nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	serr, ok := err.(*protocol.StructuredError)
	require.True(t, ok, "timeout should surface as a structured error, got %T", err)
	assert.Equal(t, protocol.CodeHandlerTimeout, serr.Code)

	assert.Less(t, elapsed, time.Second, "timeout should fire near the deadline")
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)

	select {
	case ev := <-events:
		assert.Equal(t, 100*time.Millisecond, ev.timeout)
		assert.NotEmpty(t, ev.id)
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}

	assert.Equal(t, 0, c.PendingRequests())
}

func TestLateResponseDiscarded(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		time.Sleep(300 * time.Millisecond)
		return echoHandler(req)
	})
	c := newTestClient(t, s, nil)

	h, err := c.Send("slow", nil, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateTimedOut, h.State())

	// Let the server finish and attempt its reply to the dismantled
	// socket. Nothing may change on this side.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, StateTimedOut, h.State())
	assert.Equal(t, 0, c.PendingRequests())
}

func TestNotifyFireAndForget(t *testing.T) {
	received := make(chan *protocol.Request, 1)
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		received <- req
		return echoHandler(req)
	})

	replyDir := shortTempDir(t)
	c := newTestClient(t, s, func(cfg *Config) {
		cfg.ResponseSocketDir = replyDir
	})

	require.NoError(t, c.Notify("log", map[string]interface{}{"line": "started"}))

	select {
	case req := <-received:
		assert.Empty(t, req.ReplyTo, "notifications carry no reply address")
		assert.Equal(t, "log", req.Command)
	case <-time.After(time.Second):
		t.Fatal("server never received the notification")
	}

	// No pending entry and no reply socket were ever created.
	assert.Equal(t, 0, c.PendingRequests())
	entries, err := os.ReadDir(replyDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "sockrpc-"),
			"stray reply socket %s", e.Name())
	}
}

func TestConcurrentRequestsResolveIndependently(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		if ms, ok := req.Args["sleep_ms"].(float64); ok {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return echoHandler(req)
	})
	c := newTestClient(t, s, nil)

	// First request will time out; second must complete untouched.
	slow, err := c.Send("work", map[string]interface{}{"sleep_ms": float64(500)}, 50*time.Millisecond)
	require.NoError(t, err)
	ok, err := c.Send("work", map[string]interface{}{"sleep_ms": float64(150)}, 2*time.Second)
	require.NoError(t, err)

	_, slowErr := slow.Wait(context.Background())
	require.Error(t, slowErr)
	assert.Equal(t, StateTimedOut, slow.State())

	resp, okErr := ok.Wait(context.Background())
	require.NoError(t, okErr)
	assert.Equal(t, StateCompleted, ok.State())
	assert.True(t, resp.Success)

	assert.Equal(t, 0, c.PendingRequests())
}

func TestManyConcurrentCalls(t *testing.T) {
	s := startTestServer(t, echoHandler)
	c := newTestClient(t, s, nil)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Call(context.Background(), "echo",
				map[string]interface{}{"n": float64(i)}, 2*time.Second)
			if err != nil {
				errs[i] = err
				return
			}
			result := resp.Result.(map[string]interface{})
			if result["n"] != float64(i) {
				errs[i] = errors.New("response correlated to the wrong request")
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "call %d", i)
	}
	assert.Equal(t, 0, c.PendingRequests())
}

func TestCancel(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		time.Sleep(300 * time.Millisecond)
		return echoHandler(req)
	})
	c := newTestClient(t, s, nil)

	h, err := c.Send("slow", nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateSent, h.State())
	assert.Equal(t, "slow", h.Command())
	assert.False(t, h.CreatedAt().IsZero())

	h.Cancel()
	assert.True(t, h.Cancelled())

	_, err = h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, c.PendingRequests())

	// Cancelling again must be a no-op.
	h.Cancel()
	assert.Equal(t, StateCancelled, h.State())
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	s := startTestServer(t, echoHandler)
	c := newTestClient(t, s, nil)

	h, err := c.Send("echo", nil, 2*time.Second)
	require.NoError(t, err)

	resp, err := h.Wait(context.Background())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, StateCompleted, h.State())

	h.Cancel()
	assert.Equal(t, StateCompleted, h.State(), "cancel after resolution must not change the outcome")
	assert.False(t, h.Cancelled())
}

func TestContextCancelsWait(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		time.Sleep(time.Second)
		return echoHandler(req)
	})
	c := newTestClient(t, s, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, "slow", nil, 5*time.Second)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, c.PendingRequests())
}

func TestErrorResponse(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		return protocol.NewErrorResponse(req.ID,
			protocol.NewError(protocol.CodeResourceNotFound).WithData("what", "workspace"))
	})
	c := newTestClient(t, s, nil)

	_, err := c.Call(context.Background(), "open", nil, 2*time.Second)
	require.Error(t, err)

	serr, ok := err.(*protocol.StructuredError)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeResourceNotFound, serr.Code)
	assert.Equal(t, "workspace", serr.Data["what"])
}

func TestPendingLimit(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		time.Sleep(time.Second)
		return echoHandler(req)
	})
	c := newTestClient(t, s, func(cfg *Config) {
		cfg.MaxPendingRequests = 1
	})

	h, err := c.Send("slow", nil, 5*time.Second)
	require.NoError(t, err)
	defer h.Cancel()

	_, err = c.Send("slow", nil, 5*time.Second)
	require.Error(t, err)
	serr, ok := err.(*protocol.StructuredError)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeResourceLimitExceeded, serr.Code)
}

func TestCloseResolvesOutstanding(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		time.Sleep(time.Second)
		return echoHandler(req)
	})
	c := newTestClient(t, s, nil)

	h, err := c.Send("slow", nil, 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, err = h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = c.Send("any", nil, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Notify("any", nil), ErrClosed)
}

func TestReplySocketsCleanedUp(t *testing.T) {
	s := startTestServer(t, echoHandler)
	replyDir := shortTempDir(t)
	c := newTestClient(t, s, func(cfg *Config) {
		cfg.ResponseSocketDir = replyDir
	})

	for i := 0; i < 5; i++ {
		_, err := c.Call(context.Background(), "echo", nil, 2*time.Second)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(replyDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "resolved requests must unlink their reply sockets")
}

func TestStatsCounters(t *testing.T) {
	s := startTestServer(t, func(req *protocol.Request) *protocol.Response {
		if ms, ok := req.Args["sleep_ms"].(float64); ok {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return echoHandler(req)
	})
	c := newTestClient(t, s, nil)

	_, err := c.Call(context.Background(), "echo", nil, 2*time.Second)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), "work",
		map[string]interface{}{"sleep_ms": float64(500)}, 50*time.Millisecond)
	require.Error(t, err)

	h, err := c.Send("work", map[string]interface{}{"sleep_ms": float64(500)}, 2*time.Second)
	require.NoError(t, err)
	h.Cancel()

	require.NoError(t, c.Notify("log", nil))

	stats := c.Stats()
	assert.Equal(t, uint64(3), stats.Sent)
	assert.Equal(t, uint64(1), stats.Notifications)
	assert.Equal(t, uint64(1), stats.Completed)
	assert.Equal(t, uint64(1), stats.TimedOut)
	assert.Equal(t, uint64(1), stats.Cancelled)
}

func TestNewRequiresSocketPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
