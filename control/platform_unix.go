//go:build unix

// control/platform_unix.go
// Author: momentics <momentics@gmail.com>
//
// Unix platform probes: CPU count and the descriptor limit that bounds how
// many sockets a process may keep open.

package control

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// RegisterPlatformProbes sets unix-specific debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.nofile", func() any {
		var rl unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
			return err.Error()
		}
		return map[string]uint64{"cur": uint64(rl.Cur), "max": uint64(rl.Max)}
	})
}
