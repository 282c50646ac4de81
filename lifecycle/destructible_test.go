package lifecycle_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-sock/lifecycle"
)

func TestDestroyWithoutLocksFinalizesImmediately(t *testing.T) {
	var calls int32
	d := lifecycle.New(func() { atomic.AddInt32(&calls, 1) })
	if !d.Destroy() {
		t.Fatal("first Destroy should report true")
	}
	if d.Destroy() {
		t.Error("second Destroy should report false")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("finalizer ran %d times, want 1", got)
	}
	if !d.Finalized() || !d.DestroyRequested() {
		t.Error("expected destroyed and finalized state")
	}
}

func TestLockDefersFinalization(t *testing.T) {
	var calls int32
	d := lifecycle.New(func() { atomic.AddInt32(&calls, 1) })
	l1 := d.Lock()
	l2 := d.Lock()
	if d.Locks() != 2 {
		t.Fatalf("Locks() = %d, want 2", d.Locks())
	}
	d.Destroy()
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("finalized while locks are held")
	}
	l1.Release()
	l1.Release() // idempotent
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("finalized while one lock is still held")
	}
	l2.Release()
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("finalizer ran %d times, want 1", got)
	}
}

func TestReleaseBeforeDestroyDoesNotFinalize(t *testing.T) {
	var calls int32
	d := lifecycle.New(func() { atomic.AddInt32(&calls, 1) })
	d.Lock().Release()
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("finalized without Destroy")
	}
}

func TestTryLockFailsAfterFinalize(t *testing.T) {
	d := lifecycle.New(nil)
	d.Destroy()
	if _, ok := d.TryLock(); ok {
		t.Fatal("TryLock succeeded on finalized object")
	}
	l := d.Lock()
	if l.Held() {
		t.Error("lock on finalized object should be inert")
	}
	l.Release()
}

func TestLockAfterDestroyRequestedStillDefers(t *testing.T) {
	var calls int32
	d := lifecycle.New(func() { atomic.AddInt32(&calls, 1) })
	held := d.Lock()
	d.Destroy()
	late, ok := d.TryLock()
	if !ok {
		t.Fatal("TryLock should succeed while not finalized")
	}
	held.Release()
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("finalized while late lock is held")
	}
	late.Release()
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatal("expected finalization after last release")
	}
}

func TestHeldLockFromAnotherGoroutine(t *testing.T) {
	done := make(chan struct{})
	d := lifecycle.New(func() { close(done) })
	l := d.Lock()
	go func() {
		time.Sleep(50 * time.Millisecond)
		l.Release()
	}()
	d.Destroy()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("finalizer did not run after release")
	}
}

// TestConcurrentDestroyAndLocks races many lockers against several
// destroyers; the finalizer must run exactly once.
func TestConcurrentDestroyAndLocks(t *testing.T) {
	for round := 0; round < 200; round++ {
		var calls int32
		d := lifecycle.New(func() { atomic.AddInt32(&calls, 1) })
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if l, ok := d.TryLock(); ok {
						if atomic.LoadInt32(&calls) != 0 {
							t.Error("lock acquired on finalized object")
						}
						l.Release()
					}
				}
			}()
		}
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.Destroy()
			}()
		}
		wg.Wait()
		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Fatalf("round %d: finalizer ran %d times, want 1", round, got)
		}
	}
}
