// Package api
// Author: momentics <momentics@gmail.com>
//
// Categorized error values surfaced by sockets, listeners and the resolver.
// Errors are plain comparable values: use errors.Is against the sentinels
// below, or CodeOf to get the category.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents the category of a failure.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeResolution
	ErrCodeConnection
	ErrCodeTimeout
	ErrCodeTransport
	ErrCodeLifecycle
	ErrCodeInvalidArgument
	ErrCodeNotSupported
	ErrCodeInternal
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:              "ok",
	ErrCodeResolution:      "resolution",
	ErrCodeConnection:      "connection",
	ErrCodeTimeout:         "timeout",
	ErrCodeTransport:       "transport",
	ErrCodeLifecycle:       "lifecycle",
	ErrCodeInvalidArgument: "invalid_argument",
	ErrCodeNotSupported:    "not_supported",
	ErrCodeInternal:        "internal",
}

// String returns the metric-friendly name of the code.
func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Sentinel errors. Wrapped errors produced at runtime match them through
// errors.Is when code and message agree.
var (
	// resolution
	ErrUnknownHost     = NewError(ErrCodeResolution, "unknown host")
	ErrUnknownService  = NewError(ErrCodeResolution, "unknown service")
	ErrResolverFailure = NewError(ErrCodeResolution, "resolver failure")

	// connection
	ErrConnectionRefused = NewError(ErrCodeConnection, "connection refused")
	ErrUnreachable       = NewError(ErrCodeConnection, "network unreachable")
	ErrAddressInUse      = NewError(ErrCodeConnection, "address in use")
	ErrConnectFailed     = NewError(ErrCodeConnection, "connect failed")

	ErrTimeout = NewError(ErrCodeTimeout, "operation timed out")

	// transport
	ErrEOF            = NewError(ErrCodeTransport, "connection closed by peer")
	ErrClosed         = NewError(ErrCodeTransport, "connection closed")
	ErrConnReset      = NewError(ErrCodeTransport, "connection reset")
	ErrBrokenPipe     = NewError(ErrCodeTransport, "broken pipe")
	ErrBufferOverflow = NewError(ErrCodeTransport, "unconsumed input exceeds buffer limit")
	ErrIO             = NewError(ErrCodeTransport, "i/o failure")

	// lifecycle
	ErrDestroyed        = NewError(ErrCodeLifecycle, "socket destroyed")
	ErrNotConnected     = NewError(ErrCodeLifecycle, "socket not connected")
	ErrAlreadyConnected = NewError(ErrCodeLifecycle, "socket already connected or connecting")
	ErrFactoryRejected  = NewError(ErrCodeLifecycle, "factory rejected connection")
	ErrReactorClosed    = NewError(ErrCodeLifecycle, "reactor closed")

	ErrInvalidArgument = NewError(ErrCodeInvalidArgument, "invalid argument")
	ErrNotSupported    = NewError(ErrCodeNotSupported, "operation not supported")
)

// Error represents a structured error with code and context.
type Error struct {
	Code     ErrorCode
	Message  string
	Op       string   // operation that failed: connect, read, write, accept, ...
	Endpoint Endpoint // peer or bind endpoint when known
	Err      error    // underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Endpoint.IsValid() {
		msg += " (" + e.Endpoint.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors: same code and, when the target carries one,
// same message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap derives an error with operation context and cause from a sentinel.
func (e *Error) Wrap(op string, cause error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Op: op, Endpoint: e.Endpoint, Err: cause}
}

// At attaches an endpoint to a copy of the error.
func (e *Error) At(ep Endpoint) *Error {
	cp := *e
	cp.Endpoint = ep
	return &cp
}

// CodeOf returns the category of err, ErrCodeOK for nil and ErrCodeInternal
// for errors that do not carry a code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
