package pool

import (
	"sync"
)

var (
	defaultOnce sync.Once
	defaultMgr  *Manager
)

// Manager hands out one BytePool per buffer size.
type Manager struct {
	mu    sync.Mutex
	pools map[int]*BytePool
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{pools: make(map[int]*BytePool)}
}

// GetPool returns the pool for size, creating it on first use.
func (m *Manager) GetPool(size int) *BytePool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[size]
	if !ok {
		p = NewBytePool(size)
		m.pools[size] = p
	}
	return p
}

// Stats returns the stats of every pool keyed by size.
func (m *Manager) Stats() map[int]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]Stats, len(m.pools))
	for size, p := range m.pools {
		out[size] = p.Stats()
	}
	return out
}

// DefaultManager returns a process-wide Manager so all sockets with the
// same read buffer size share one pool.
func DefaultManager() *Manager {
	defaultOnce.Do(func() {
		defaultMgr = NewManager()
	})
	return defaultMgr
}

// DefaultPool is a shortcut to fetch a pool from the default manager.
func DefaultPool(size int) *BytePool {
	return DefaultManager().GetPool(size)
}
