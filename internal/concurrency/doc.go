// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives behind the reactor: a worker pool (Executor) and
// serial execution contexts (Strand) layered on it. Every socket owns one
// strand, so its completions and hooks never run concurrently while the
// pool as a whole spreads sockets over all workers.
package concurrency
