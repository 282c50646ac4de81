// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the execution context of the socket layer: a
// worker pool, serial strands on top of it, and asynchronous network
// operations whose completions are posted to a strand. The Go runtime
// netpoller performs the readiness demultiplexing.
package reactor
