//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

// File: socket/sockopt_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// reusePortControl sets SO_REUSEPORT before bind.
func reusePortControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return errors.Wrap(err, "raw control")
	}
	return errors.Wrapf(serr, "setsockopt SO_REUSEPORT on %s", address)
}
