// Package api
// Author: momentics
//
// Executor contract for the worker pool behind the reactor.

package api

// Executor runs submitted tasks on a pool of worker goroutines.
type Executor interface {
	// Submit schedules task for execution. It fails once the executor is closed.
	Submit(task func()) error

	// NumWorkers returns current number of active worker routines.
	NumWorkers() int

	// Resize adjusts the concurrency at runtime.
	Resize(newCount int)

	// Close stops the workers after the queued tasks ran.
	Close()
}
