//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

// File: socket/sockopt_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"syscall"

	"github.com/momentics/hioload-sock/api"
)

func reusePortControl(network, address string, c syscall.RawConn) error {
	return api.ErrNotSupported.Wrap("reuse port", nil)
}
