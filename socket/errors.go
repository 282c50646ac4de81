// File: socket/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Mapping of OS and runtime errors onto the api error categories.

package socket

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/momentics/hioload-sock/api"
)

// classify converts err into an *api.Error for op. Errors that already
// carry a category keep it.
func classify(op string, err error, ep api.Endpoint) error {
	if err == nil {
		return nil
	}
	var ae *api.Error
	if errors.As(err, &ae) {
		return err
	}
	var sentinel *api.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		sentinel = api.ErrEOF
	case errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
		sentinel = api.ErrClosed
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		sentinel = api.ErrTimeout
	}
	if sentinel == nil {
		var errno syscall.Errno
		if errors.As(err, &errno) {
			sentinel = classifyErrno(errno)
		}
	}
	if sentinel == nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			sentinel = api.ErrTimeout
		}
	}
	if sentinel == nil {
		if op == "connect" || op == "dial" {
			sentinel = api.ErrConnectFailed
		} else {
			sentinel = api.ErrIO
		}
	}
	e := sentinel.Wrap(op, err)
	if ep.IsValid() {
		e = e.At(ep)
	}
	return e
}
