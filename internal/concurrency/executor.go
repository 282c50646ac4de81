// File: internal/concurrency/executor.go
// Package concurrency implements the worker pool behind the reactor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines from one unbounded FIFO.
// Tasks are never dropped while the executor is open: posting a completion
// must not fail because the pool is momentarily busy.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/containerd/log"
	"github.com/eapache/queue"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue // of TaskFunc
	closed  bool
	target  int // desired number of workers
	running int // workers currently alive
	wg      sync.WaitGroup

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// NewExecutor creates a new Executor with the given number of workers.
// If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{tasks: queue.New()}
	e.cond = sync.NewCond(&e.mu)
	e.Resize(numWorkers)
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if executor is closed.
func (e *Executor) Submit(task TaskFunc) error {
	if task == nil {
		return nil
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.tasks.Add(task)
	e.mu.Unlock()
	e.totalTasks.Add(1)
	e.cond.Signal()
	return nil
}

// NumWorkers returns the current number of active workers.
func (e *Executor) NumWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Pending returns the number of queued tasks.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks.Length()
}

// Resize dynamically scales the worker pool. Surplus workers exit after
// their current task.
func (e *Executor) Resize(newCount int) {
	if newCount <= 0 {
		newCount = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.target = newCount
	for e.running < e.target {
		e.running++
		e.wg.Add(1)
		go e.work()
	}
	e.cond.Broadcast()
}

// Close drains the queue and waits for workers to exit. Calling Close from
// a task would deadlock, so it must be called from outside the pool.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.cond.Broadcast()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	completed := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": completed,
		"pending_tasks":   total - completed,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.NumWorkers()),
	}
}

func (e *Executor) work() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.tasks.Length() == 0 && !e.closed && e.running <= e.target {
			e.cond.Wait()
		}
		if e.running > e.target {
			e.running--
			e.mu.Unlock()
			return
		}
		if e.tasks.Length() == 0 {
			// closed and drained
			e.running--
			e.mu.Unlock()
			return
		}
		task := e.tasks.Remove().(TaskFunc)
		e.mu.Unlock()
		e.executeTask(task)
	}
}

// executeTask runs the task and updates statistics, recovering from panics.
func (e *Executor) executeTask(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			log.L.WithField("panic", r).Error("executor: task panicked")
		}
		e.completedTasks.Add(1)
	}()
	task()
}
