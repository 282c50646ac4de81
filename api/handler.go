// File: api/handler.go
// Package api defines the application hooks of a socket.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler receives the events of one socket. Calls for a given socket never
// overlap and run on the reactor's execution context, so implementations
// must not block.
type Handler interface {
	// OnRead is invoked once per delivered chunk and returns the number of
	// bytes consumed. data is only valid for the duration of the call.
	OnRead(data []byte) int

	// OnError is invoked once when the connection ends, whatever the cause.
	// A peer closing the stream is reported as ErrEOF.
	OnError(err error)
}

// Finalizer is implemented by handlers that want to know when the socket
// resources were released. It is the last call a handler receives.
type Finalizer interface {
	OnFinalize()
}

// HandlerFuncs adapts plain functions to Handler. Nil fields consume all
// input and ignore errors.
type HandlerFuncs struct {
	Read  func(data []byte) int
	Error func(err error)
}

// OnRead implements Handler.
func (h HandlerFuncs) OnRead(data []byte) int {
	if h.Read == nil {
		return len(data)
	}
	return h.Read(data)
}

// OnError implements Handler.
func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// NopHandler consumes everything and ignores errors.
var NopHandler Handler = HandlerFuncs{}
