// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync/atomic"

// BytePool recycles fixed-size read buffers.
type BytePool struct {
	size int
	p    *SyncPool[*[]byte]

	gets, puts, allocs atomic.Int64
}

// NewBytePool returns a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	b := &BytePool{size: size}
	b.p = NewSyncPool(func() *[]byte {
		b.allocs.Add(1)
		buf := make([]byte, size)
		return &buf
	}, func(buf *[]byte) bool { return cap(*buf) >= size })
	return b
}

// Size returns the buffer length handed out by GetBuffer.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of length Size.
func (b *BytePool) GetBuffer() []byte {
	b.gets.Add(1)
	return (*b.p.Get())[:b.size]
}

// PutBuffer returns buf to the pool. Buffers smaller than Size are dropped.
func (b *BytePool) PutBuffer(buf []byte) {
	if cap(buf) < b.size {
		return
	}
	b.puts.Add(1)
	buf = buf[:b.size]
	b.p.Put(&buf)
}

// Stats reports get, put and allocation counts.
func (b *BytePool) Stats() Stats {
	return Stats{Gets: b.gets.Load(), Puts: b.puts.Load(), Allocs: b.allocs.Load()}
}

// Stats is a point-in-time view of a BytePool.
type Stats struct {
	Gets, Puts, Allocs int64
}
