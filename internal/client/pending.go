package client

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/sockrpc/internal/protocol"
)

// RequestState represents the lifecycle state of a tracked request
type RequestState int32

const (
	// StateCreated indicates the request exists but is not on the wire yet
	StateCreated RequestState = iota
	// StateSent indicates the request is on the wire awaiting resolution
	StateSent
	// StateCompleted indicates a correlated response arrived in time
	StateCompleted
	// StateTimedOut indicates the deadline elapsed first
	StateTimedOut
	// StateCancelled indicates the caller cancelled the request
	StateCancelled
)

func (s RequestState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSent:
		return "sent"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one of the three terminal states.
func (s RequestState) Terminal() bool {
	return s == StateCompleted || s == StateTimedOut || s == StateCancelled
}

// outcome is what a resolved request delivers to its waiter.
type outcome struct {
	resp *protocol.Response
	err  error
}

// pendingRequest tracks one outstanding request. The once field is the
// single-resolution slot: whichever of response arrival, timer expiry, or
// cancellation runs it first decides the outcome, and the others become
// no-ops.
type pendingRequest struct {
	id        string
	command   string
	created   time.Time
	timeout   time.Duration
	replyPath string
	conn      *net.UnixConn

	state atomic.Int32
	once  sync.Once
	done  chan outcome
	timer *time.Timer
}

func (p *pendingRequest) setState(s RequestState) {
	p.state.Store(int32(s))
}

func (p *pendingRequest) getState() RequestState {
	return RequestState(p.state.Load())
}

// RequestHandle is the caller-facing token for an outstanding request. It
// does not expose the request identifier; it is a capability to wait on
// or cancel the request it wraps.
type RequestHandle struct {
	client  *Client
	pending *pendingRequest
}

// Command returns the command name the request carries.
func (h *RequestHandle) Command() string {
	return h.pending.command
}

// CreatedAt returns when the request was built.
func (h *RequestHandle) CreatedAt() time.Time {
	return h.pending.created
}

// State returns the request's current lifecycle state.
func (h *RequestHandle) State() RequestState {
	return h.pending.getState()
}

// Cancelled reports whether the request ended in cancellation.
func (h *RequestHandle) Cancelled() bool {
	return h.pending.getState() == StateCancelled
}

// Cancel resolves the request as cancelled. Cancelling a request that has
// already resolved is a no-op; a response arriving after cancellation is
// discarded. Cancellation does not stop a handler that already started
// executing on the server.
func (h *RequestHandle) Cancel() {
	h.client.resolve(h.pending, StateCancelled, outcome{err: ErrCancelled})
}

// Wait blocks until the request resolves and returns the result. A
// response carrying a structured error is returned as that error. If ctx
// ends first the request is cancelled and the terminal outcome is
// returned: usually the cancellation, unless a response won the race.
// Wait consumes the resolution and must be called at most once.
func (h *RequestHandle) Wait(ctx context.Context) (*protocol.Response, error) {
	select {
	case o := <-h.pending.done:
		return unpack(o)
	case <-ctx.Done():
		h.Cancel()
		// The resolution slot is buffered, so the terminal outcome is
		// already there or about to be.
		o := <-h.pending.done
		return unpack(o)
	}
}

func unpack(o outcome) (*protocol.Response, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.resp != nil && o.resp.Error != nil {
		return nil, o.resp.Error
	}
	return o.resp, nil
}
