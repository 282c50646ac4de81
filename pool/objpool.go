// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "sync"

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool is a typed sync.Pool. Objects rejected by accept are not pooled.
type SyncPool[T any] struct {
	pool   *sync.Pool
	accept func(T) bool
}

var _ ObjectPool[*[]byte] = (*SyncPool[*[]byte])(nil)

// NewSyncPool creates a pool allocating with creator. accept may be nil.
func NewSyncPool[T any](creator func() T, accept func(T) bool) *SyncPool[T] {
	return &SyncPool[T]{
		pool:   &sync.Pool{New: func() any { return creator() }},
		accept: accept,
	}
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	if sp.accept != nil && !sp.accept(obj) {
		return
	}
	sp.pool.Put(obj)
}
