//go:build !unix && !windows

// File: socket/errno_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"syscall"

	"github.com/momentics/hioload-sock/api"
)

func classifyErrno(syscall.Errno) *api.Error { return nil }
