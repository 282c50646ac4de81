//go:build windows

// File: socket/errno_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-sock/api"
)

func classifyErrno(errno syscall.Errno) *api.Error {
	switch errno {
	case windows.WSAECONNREFUSED, windows.ERROR_CONNECTION_REFUSED:
		return api.ErrConnectionRefused
	case windows.WSAENETUNREACH, windows.WSAEHOSTUNREACH, windows.ERROR_NETWORK_UNREACHABLE, windows.ERROR_HOST_UNREACHABLE:
		return api.ErrUnreachable
	case windows.WSAEADDRINUSE:
		return api.ErrAddressInUse
	case windows.WSAECONNRESET, windows.WSAECONNABORTED:
		return api.ErrConnReset
	case windows.ERROR_BROKEN_PIPE:
		return api.ErrBrokenPipe
	case windows.WSAETIMEDOUT:
		return api.ErrTimeout
	}
	return nil
}
