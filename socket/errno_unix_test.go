//go:build unix

package socket

import (
	"errors"
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"

	"github.com/momentics/hioload-sock/api"
)

func TestClassifyErrno(t *testing.T) {
	cases := map[unix.Errno]*api.Error{
		unix.ECONNREFUSED: api.ErrConnectionRefused,
		unix.ENETUNREACH:  api.ErrUnreachable,
		unix.EADDRINUSE:   api.ErrAddressInUse,
		unix.ECONNRESET:   api.ErrConnReset,
		unix.EPIPE:        api.ErrBrokenPipe,
		unix.ETIMEDOUT:    api.ErrTimeout,
	}
	for errno, want := range cases {
		err := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", errno)}
		got := classify("read", err, api.Endpoint{})
		assert.Check(t, errors.Is(got, want), "%v -> %v, want %v", errno, got, want)
		assert.Check(t, errors.Is(got, errno))
	}
}
