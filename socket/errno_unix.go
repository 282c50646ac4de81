//go:build unix

// File: socket/errno_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-sock/api"
)

func classifyErrno(errno syscall.Errno) *api.Error {
	switch errno {
	case unix.ECONNREFUSED:
		return api.ErrConnectionRefused
	case unix.ENETUNREACH, unix.EHOSTUNREACH, unix.ENETDOWN, unix.EHOSTDOWN, unix.EADDRNOTAVAIL:
		return api.ErrUnreachable
	case unix.EADDRINUSE:
		return api.ErrAddressInUse
	case unix.ECONNRESET, unix.ECONNABORTED:
		return api.ErrConnReset
	case unix.EPIPE:
		return api.ErrBrokenPipe
	case unix.ETIMEDOUT:
		return api.ErrTimeout
	case unix.EMSGSIZE:
		return api.ErrInvalidArgument
	}
	return nil
}
