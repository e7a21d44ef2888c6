package protocol

import "fmt"

// Standard protocol error codes (JSON-RPC 2.0 range)
const (
	// CodeParseError indicates an undecodable payload
	CodeParseError = -32700
	// CodeInvalidRequest indicates a decodable payload missing required envelope fields
	CodeInvalidRequest = -32600
	// CodeMethodNotFound indicates a command absent from the handler registry
	CodeMethodNotFound = -32601
	// CodeInvalidParams indicates a missing or invalid argument
	CodeInvalidParams = -32602
	// CodeInternalError indicates an unexpected failure inside the engine
	CodeInternalError = -32603
)

// Implementation-defined server error codes (-32000..-32099)
const (
	// CodeServerError is the generic handler failure code
	CodeServerError = -32000
	// CodeServiceUnavailable indicates the server is shutting down or not accepting work
	CodeServiceUnavailable = -32001
	// CodeAuthenticationFailed indicates the peer failed authentication
	CodeAuthenticationFailed = -32002
	// CodeRateLimitExceeded indicates the peer exceeded its request rate
	CodeRateLimitExceeded = -32003
	// CodeResourceNotFound indicates a referenced entity does not exist
	CodeResourceNotFound = -32004
	// CodeValidationFailed indicates a value rejected by the manifest engine
	// outside the request-argument path (response specs, manifest loading)
	CodeValidationFailed = -32005
	// CodeHandlerTimeout indicates the handler lost the race against the request deadline
	CodeHandlerTimeout = -32006
	// CodeSocketError indicates a transport-level send or bind failure
	CodeSocketError = -32007
	// CodeConfigurationError indicates an invalid server or manifest configuration
	CodeConfigurationError = -32008
	// CodeSecurityViolation indicates a request rejected on security grounds
	CodeSecurityViolation = -32009
	// CodeResourceLimitExceeded indicates a configured concurrency or pending limit was hit
	CodeResourceLimitExceeded = -32010
)

// codeText maps each error code to its canonical message.
var codeText = map[int]string{
	CodeParseError:     "Parse error",
	CodeInvalidRequest: "Invalid request",
	CodeMethodNotFound: "Method not found",
	CodeInvalidParams:  "Invalid params",
	CodeInternalError:  "Internal error",

	CodeServerError:           "Server error",
	CodeServiceUnavailable:    "Service unavailable",
	CodeAuthenticationFailed:  "Authentication failed",
	CodeRateLimitExceeded:     "Rate limit exceeded",
	CodeResourceNotFound:      "Resource not found",
	CodeValidationFailed:      "Validation failed",
	CodeHandlerTimeout:        "Handler timeout",
	CodeSocketError:           "Socket error",
	CodeConfigurationError:    "Configuration error",
	CodeSecurityViolation:     "Security violation",
	CodeResourceLimitExceeded: "Resource limit exceeded",
}

// CodeText returns the canonical message for a protocol error code.
// Unknown codes fall back to the generic server error message.
func CodeText(code int) string {
	if text, ok := codeText[code]; ok {
		return text
	}
	return codeText[CodeServerError]
}

// StructuredError is the uniform error value exchanged across client and
// server. Code is drawn from the fixed enumeration above, Message is
// human-readable, and Data carries optional free-form context (offending
// field, violated constraint, details).
type StructuredError struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewError creates a StructuredError with the canonical message for code.
func NewError(code int) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: CodeText(code),
	}
}

// Errorf creates a StructuredError with a custom formatted message.
func Errorf(code int, format string, args ...interface{}) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithData attaches a context key/value pair and returns the error for chaining.
func (e *StructuredError) WithData(key string, value interface{}) *StructuredError {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// WithField attaches the offending field name, the convention used by the
// validation engine so callers can locate the rejected argument.
func (e *StructuredError) WithField(field string) *StructuredError {
	return e.WithData("field", field)
}
