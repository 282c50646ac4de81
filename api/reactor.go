// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Contracts of the execution context that runs socket completions and of the
// name resolution collaborator.

package api

import "context"

// Poster accepts units of work for later execution.
type Poster interface {
	// Post schedules task. It never runs task inline.
	Post(task func()) error
}

// Serializer is a Poster whose tasks never run concurrently with each other
// and run in the order they were posted.
type Serializer interface {
	Poster

	// Pending returns the number of queued tasks.
	Pending() int
}

// Resolver turns (network, host, service) into endpoint candidates.
type Resolver interface {
	// Resolve returns the endpoints in resolver order, or an error with
	// code ErrCodeResolution and an empty list.
	Resolve(ctx context.Context, network, host, service string) ([]Endpoint, error)
}
