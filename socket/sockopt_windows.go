//go:build windows

// File: socket/sockopt_windows.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// reusePortControl sets SO_REUSEADDR, the closest Winsock analogue.
func reusePortControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return errors.Wrap(err, "raw control")
	}
	return errors.Wrapf(serr, "setsockopt SO_REUSEADDR on %s", address)
}
