// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Reactor handle shared by all sockets of a process or test.

package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/containerd/log"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/internal/concurrency"
)

// Reactor runs posted tasks and async operation completions.
type Reactor struct {
	exec   *concurrency.Executor
	batch  int
	probes *control.DebugProbes

	closed   atomic.Bool
	inflight atomic.Int64 // blocking ops parked in the netpoller
	strands  atomic.Int64 // created
}

var (
	_ api.Executor = (*Reactor)(nil)
	_ api.Poster   = (*Reactor)(nil)
	_ api.Debug    = (*Reactor)(nil)
)

type options struct {
	workers int
	batch   int
	probes  *control.DebugProbes
}

// Option tunes a Reactor.
type Option func(*options)

// WithWorkers sets the worker count; n <= 0 means runtime.NumCPU().
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithBatchSize sets how many tasks a strand runs per worker turn.
func WithBatchSize(n int) Option { return func(o *options) { o.batch = n } }

// WithConfig takes workers and batch size from cfg.
func WithConfig(cfg control.Config) Option {
	return func(o *options) {
		o.workers = cfg.Workers
		o.batch = cfg.BatchSize
	}
}

// WithProbes registers the reactor probes into dp instead of a private registry.
func WithProbes(dp *control.DebugProbes) Option { return func(o *options) { o.probes = dp } }

// New starts a reactor.
func New(opts ...Option) *Reactor {
	o := options{batch: concurrency.DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.probes == nil {
		o.probes = control.NewDebugProbes()
	}
	r := &Reactor{
		exec:   concurrency.NewExecutor(o.workers),
		batch:  o.batch,
		probes: o.probes,
	}
	r.probes.RegisterProbe("reactor.workers", func() any { return r.exec.NumWorkers() })
	r.probes.RegisterProbe("reactor.pending", func() any { return r.exec.Pending() })
	r.probes.RegisterProbe("reactor.tasks", func() any { return r.exec.Stats() })
	r.probes.RegisterProbe("reactor.inflight", func() any { return r.inflight.Load() })
	r.probes.RegisterProbe("reactor.strands_created", func() any { return r.strands.Load() })
	return r
}

var (
	defaultReactor *Reactor
	defaultOnce    sync.Once
)

// Default returns the process-wide reactor, created on first use from the
// default configuration and HIOLOAD_* overrides. It is never closed.
func Default() *Reactor {
	defaultOnce.Do(func() {
		cfg, err := control.ApplyEnv(control.DefaultConfig())
		if err != nil {
			log.L.WithError(err).Warn("reactor: ignoring environment configuration")
			cfg = control.DefaultConfig()
		}
		defaultReactor = New(WithConfig(cfg))
	})
	return defaultReactor
}

// Post schedules task on any worker.
func (r *Reactor) Post(task func()) error {
	if err := r.exec.Submit(task); err != nil {
		return api.ErrReactorClosed
	}
	return nil
}

// Submit is Post under the api.Executor name.
func (r *Reactor) Submit(task func()) error { return r.Post(task) }

// NumWorkers returns the number of live workers.
func (r *Reactor) NumWorkers() int { return r.exec.NumWorkers() }

// Resize changes the worker count.
func (r *Reactor) Resize(n int) { r.exec.Resize(n) }

// Closed reports whether Close was called.
func (r *Reactor) Closed() bool { return r.closed.Load() }

// Close stops accepting work and waits for queued tasks. Operations still
// parked in the netpoller deliver their completion on their own goroutine
// from then on. Close must not be called from a reactor task.
func (r *Reactor) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.exec.Close()
}

// DumpState returns the values of all registered probes.
func (r *Reactor) DumpState() map[string]any { return r.probes.DumpState() }

// RegisterProbe adds a probe to the reactor registry.
func (r *Reactor) RegisterProbe(name string, fn func() any) { r.probes.RegisterProbe(name, fn) }

// Probes returns the reactor registry.
func (r *Reactor) Probes() *control.DebugProbes { return r.probes }

// NewStrand returns a new serial context.
func (r *Reactor) NewStrand() *Strand {
	r.strands.Add(1)
	return &Strand{r: r, s: concurrency.NewStrand(r.exec, r.batch)}
}

// Strand is a serial FIFO context on a reactor. Every socket owns one and
// runs its hooks and state changes there.
type Strand struct {
	r *Reactor
	s *concurrency.Strand
}

var _ api.Serializer = (*Strand)(nil)

// Post appends task to the strand.
func (s *Strand) Post(task func()) error {
	if err := s.s.Post(task); err != nil {
		return api.ErrReactorClosed
	}
	return nil
}

// Pending returns the number of queued tasks.
func (s *Strand) Pending() int { return s.s.Pending() }

// Reactor returns the owning reactor.
func (s *Strand) Reactor() *Reactor { return s.r }
