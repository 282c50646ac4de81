// File: internal/concurrency/strand.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Strand is a serial execution context on top of an Executor. Tasks posted
// to one strand run one at a time, in FIFO order, on whichever worker picks
// up the strand. A strand drains at most batchSize tasks per turn and then
// resubmits itself so that one busy strand cannot starve the others.

package concurrency

import (
	"sync"

	"github.com/containerd/log"
	"github.com/eapache/queue"
)

// DefaultBatchSize is the number of tasks a strand runs per executor turn.
const DefaultBatchSize = 16

// Strand serializes tasks on an Executor.
type Strand struct {
	exec      *Executor
	batchSize int

	mu        sync.Mutex
	tasks     *queue.Queue // of TaskFunc
	scheduled bool         // a drain is queued or running
}

// NewStrand creates a strand draining batchSize tasks per turn.
func NewStrand(exec *Executor, batchSize int) *Strand {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Strand{
		exec:      exec,
		batchSize: batchSize,
		tasks:     queue.New(),
	}
}

// Post appends task to the strand. It returns ErrExecutorClosed, and drops
// the task, when the underlying executor no longer accepts work. Tasks
// accepted earlier still run, inline on the caller.
func (s *Strand) Post(task func()) error {
	if task == nil {
		return nil
	}
	s.mu.Lock()
	s.tasks.Add(TaskFunc(task))
	if s.scheduled {
		s.mu.Unlock()
		return nil
	}
	s.scheduled = true
	s.mu.Unlock()
	if err := s.exec.Submit(s.drain); err != nil {
		// task is the head: the queue is empty whenever scheduled is false
		s.mu.Lock()
		s.tasks.Remove()
		s.mu.Unlock()
		s.drainInline()
		return err
	}
	return nil
}

// Pending returns the number of tasks waiting to run.
func (s *Strand) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Length()
}

func (s *Strand) drain() {
	for i := 0; i < s.batchSize; i++ {
		s.mu.Lock()
		if s.tasks.Length() == 0 {
			s.scheduled = false
			s.mu.Unlock()
			return
		}
		task := s.tasks.Remove().(TaskFunc)
		s.mu.Unlock()
		s.run(task)
	}
	// yield the worker; scheduled stays true so Post does not double-submit
	if err := s.exec.Submit(s.drain); err != nil {
		s.drainInline()
	}
}

// drainInline runs what is left on the calling goroutine once the executor
// stops accepting work. Tasks posted meanwhile join the same run.
func (s *Strand) drainInline() {
	for {
		s.mu.Lock()
		if s.tasks.Length() == 0 {
			s.scheduled = false
			s.mu.Unlock()
			return
		}
		task := s.tasks.Remove().(TaskFunc)
		s.mu.Unlock()
		s.run(task)
	}
}

func (s *Strand) run(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			log.L.WithField("panic", r).Error("strand: task panicked")
		}
	}()
	task()
}
