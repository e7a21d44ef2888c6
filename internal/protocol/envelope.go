// Package protocol defines the wire envelopes, error code space and
// addressing conventions for sockrpc datagram exchanges.
//
// Each request and response travels as a single self-contained JSON datagram.
// Fields are tagged, never positional, so readers ignore unknown fields and
// new fields can be introduced without breaking older peers. A request that
// expects an answer carries a reply_to socket path unique to that request;
// a request without one is fire-and-forget.
package protocol

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Request is the client-to-server envelope.
type Request struct {
	// ID is generated per call and never reused.
	ID      string `json:"id"`
	Command string `json:"command"`
	// Method mirrors Command; readers of the earlier envelope revision
	// routed on this name.
	Method string `json:"method"`
	// Args maps argument names to dynamically typed values.
	Args map[string]interface{} `json:"args,omitempty"`
	// ReplyTo is the ephemeral socket path awaiting the response.
	// Empty means fire-and-forget: the server must not answer.
	ReplyTo string `json:"reply_to,omitempty"`
	// Timeout is the requested deadline in seconds. Zero means the
	// server default applies.
	Timeout   float64 `json:"timeout,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Response is the server-to-client envelope. Exactly one of Result and
// Error is populated: Success reports which.
type Response struct {
	// RequestID correlates the response with the originating request.
	RequestID string `json:"request_id"`
	// CommandID mirrors RequestID for readers of the earlier envelope
	// revision.
	CommandID string           `json:"command_id"`
	Success   bool             `json:"success"`
	Result    interface{}      `json:"result,omitempty"`
	Error     *StructuredError `json:"error,omitempty"`
	// ID is the response's own identifier.
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// ErrEmptyPayload reports a zero-length datagram.
var ErrEmptyPayload = errors.New("protocol: empty payload")

// Timestamp returns the current UTC time in the wire format
// (RFC3339 with fractional seconds).
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewID generates a fresh envelope identifier.
func NewID() string {
	return uuid.New().String()
}

// NewRequest creates a request for command with a generated id and timestamp.
// ReplyTo and Timeout are left for the caller to fill in.
func NewRequest(command string, args map[string]interface{}) *Request {
	return &Request{
		ID:        NewID(),
		Command:   command,
		Method:    command,
		Args:      args,
		Timestamp: Timestamp(),
	}
}

// Encode serializes the request, keeping the legacy method field in sync.
func (r *Request) Encode() ([]byte, error) {
	r.Method = r.Command
	return json.Marshal(r)
}

// ExpectsReply reports whether the request carries a reply address.
func (r *Request) ExpectsReply() bool {
	return r.ReplyTo != ""
}

// TimeoutDuration converts the requested timeout to a duration, falling
// back to def when the request does not declare one.
func (r *Request) TimeoutDuration(def time.Duration) time.Duration {
	if r.Timeout <= 0 {
		return def
	}
	return time.Duration(r.Timeout * float64(time.Second))
}

// DecodeRequest parses a request envelope. Routing falls back to the legacy
// method field when command is absent. A decode error means the payload was
// not valid JSON; missing envelope fields are reported by Validate.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.Command == "" {
		req.Command = req.Method
	}
	return &req, nil
}

// Validate checks the envelope invariants a decodable request must satisfy.
func (r *Request) Validate() *StructuredError {
	if r.ID == "" {
		return NewError(CodeInvalidRequest).WithData("details", "missing request id")
	}
	if r.Command == "" {
		return NewError(CodeInvalidRequest).WithData("details", "missing command")
	}
	return nil
}

// NewResult creates a successful response correlated with requestID.
func NewResult(requestID string, result interface{}) *Response {
	return &Response{
		RequestID: requestID,
		CommandID: requestID,
		Success:   true,
		Result:    result,
		ID:        NewID(),
		Timestamp: Timestamp(),
	}
}

// NewErrorResponse creates a failed response carrying serr.
func NewErrorResponse(requestID string, serr *StructuredError) *Response {
	if serr == nil {
		serr = NewError(CodeInternalError)
	}
	return &Response{
		RequestID: requestID,
		CommandID: requestID,
		Success:   false,
		Error:     serr,
		ID:        NewID(),
		Timestamp: Timestamp(),
	}
}

// Encode serializes the response, keeping the legacy command_id field in sync.
func (r *Response) Encode() ([]byte, error) {
	r.CommandID = r.RequestID
	return json.Marshal(r)
}

// DecodeResponse parses a response envelope, falling back to the legacy
// command_id field for correlation.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		resp.RequestID = resp.CommandID
	}
	return &resp, nil
}

// PeekReplyTo extracts the reply address from a payload that failed full
// decoding. The dispatch engine uses it to answer parse errors when the
// broken envelope still names a destination; an empty result means the
// datagram is dropped silently.
func PeekReplyTo(data []byte) string {
	var probe struct {
		ReplyTo string `json:"reply_to"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ReplyTo
}
