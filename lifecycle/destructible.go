// File: lifecycle/destructible.go
// Package lifecycle implements deferred, reference-counted destruction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Destructible is self-owning until Destroy is called. DestructionLock
// tokens postpone the finalization: it runs exactly once, when destroy was
// requested and no token is outstanding.

package lifecycle

import (
	"sync/atomic"
)

const (
	destroyBit  uint64 = 1 << 63
	finalBit    uint64 = 1 << 62
	countMask   uint64 = finalBit - 1
	maxLockHeld uint64 = countMask
)

// Destructible guards the release of an object's resources.
// The zero value is usable and has no finalizer.
type Destructible struct {
	// state packs destroy-requested, finalized and the lock count so that
	// acquire, release and destroy are evaluated atomically together.
	state    atomic.Uint64
	finalize func()
}

// New returns a Destructible that calls finalize once.
func New(finalize func()) *Destructible {
	return &Destructible{finalize: finalize}
}

// Init sets the finalizer of an embedded Destructible. It must be called
// before the object is shared.
func (d *Destructible) Init(finalize func()) {
	d.finalize = finalize
}

// Destroy requests teardown. Only the first call has an effect and returns
// true. Finalization happens here when no lock is held.
func (d *Destructible) Destroy() bool {
	for {
		old := d.state.Load()
		if old&destroyBit != 0 {
			return false
		}
		next := old | destroyBit
		if old&countMask == 0 {
			next |= finalBit
		}
		if d.state.CompareAndSwap(old, next) {
			if next&finalBit != 0 {
				d.runFinalize()
			}
			return true
		}
	}
}

// DestroyRequested reports whether Destroy was called.
func (d *Destructible) DestroyRequested() bool {
	return d.state.Load()&destroyBit != 0
}

// Finalized reports whether the finalizer ran or is running.
func (d *Destructible) Finalized() bool {
	return d.state.Load()&finalBit != 0
}

// Locks returns the number of outstanding tokens.
func (d *Destructible) Locks() int {
	return int(d.state.Load() & countMask)
}

// TryLock acquires a token unless the object is already finalized.
func (d *Destructible) TryLock() (*DestructionLock, bool) {
	for {
		old := d.state.Load()
		if old&finalBit != 0 {
			return nil, false
		}
		if old&countMask == maxLockHeld {
			panic("lifecycle: destruction lock count overflow")
		}
		if d.state.CompareAndSwap(old, old+1) {
			return &DestructionLock{d: d}, true
		}
	}
}

// Lock acquires a token. On a finalized object the token is inert.
func (d *Destructible) Lock() *DestructionLock {
	l, ok := d.TryLock()
	if !ok {
		l = &DestructionLock{}
		l.released.Store(true)
	}
	return l
}

func (d *Destructible) unlock() {
	for {
		old := d.state.Load()
		if old&countMask == 0 {
			panic("lifecycle: destruction lock released more than acquired")
		}
		next := old - 1
		if next&countMask == 0 && next&destroyBit != 0 {
			next |= finalBit
		}
		if d.state.CompareAndSwap(old, next) {
			if next&finalBit != 0 && old&finalBit == 0 {
				d.runFinalize()
			}
			return
		}
	}
}

func (d *Destructible) runFinalize() {
	if d.finalize != nil {
		d.finalize()
	}
}

// DestructionLock is a scoped borrow preventing finalization while held.
type DestructionLock struct {
	d        *Destructible
	released atomic.Bool
}

// Release returns the token. Further calls are no-ops.
func (l *DestructionLock) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.d.unlock()
}

// Held reports whether the token still defers finalization.
func (l *DestructionLock) Held() bool {
	return l != nil && !l.released.Load()
}
