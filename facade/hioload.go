// File: facade/hioload.go
// Unified facade layer for hioload-sock.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hioload wires one reactor, resolver, buffer pool manager, metrics and debug
// probes from a control.Config and creates sockets sharing them. It owns the
// metrics endpoint and applies hot-reloaded configuration.

package facade

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/containerd/log"
	metrics "github.com/docker/go-metrics"
	"github.com/pkg/errors"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/pool"
	"github.com/momentics/hioload-sock/reactor"
	"github.com/momentics/hioload-sock/resolver"
	"github.com/momentics/hioload-sock/socket"
)

// Hioload implements api.GracefulShutdown.
type Hioload struct {
	store    *control.ConfigStore
	reactor  *reactor.Reactor
	resolver *resolver.Resolver
	metrics  *control.Metrics
	probes   *control.DebugProbes
	buffers  *pool.Manager

	mu      sync.Mutex
	started bool
	closed  bool
	sockets map[uint64]*socket.Socket // owned sockets, swept as they finalize
	server  *http.Server
}

var _ api.GracefulShutdown = (*Hioload)(nil)

// New validates cfg, configures logging and starts the reactor. A nil cfg
// means control.DefaultConfig().
func New(cfg *control.Config) (*Hioload, error) {
	c := control.DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := control.SetupLogging(c); err != nil {
		return nil, err
	}
	h := &Hioload{
		store:    control.NewConfigStore(c),
		resolver: resolver.Default(),
		metrics:  control.DefaultMetrics(),
		probes:   control.NewDebugProbes(),
		buffers:  pool.NewManager(),
		sockets:  make(map[uint64]*socket.Socket),
	}
	control.RegisterPlatformProbes(h.probes)
	h.reactor = reactor.New(reactor.WithConfig(c), reactor.WithProbes(h.probes))
	h.probes.RegisterProbe("sockets.live", func() any { return h.metrics.Live() })
	h.probes.RegisterProbe("sockets.owned", func() any { return h.owned() })
	h.probes.RegisterProbe("pool.buffers", func() any { return h.buffers.Stats() })
	h.store.OnReload(h.apply)
	return h, nil
}

// apply pushes a reloaded configuration into the running components.
func (h *Hioload) apply(c control.Config) {
	if c.Workers > 0 && c.Workers != h.reactor.NumWorkers() {
		h.reactor.Resize(c.Workers)
	}
	if err := control.SetupLogging(c); err != nil {
		log.L.WithError(err).Warn("facade: keeping previous log settings")
	}
}

// Start exposes the metrics endpoint when configured. Subsequent calls have
// no effect.
func (h *Hioload) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return api.ErrReactorClosed
	}
	if h.started {
		return nil
	}
	h.started = true
	addr := h.store.GetSnapshot().MetricsAddr
	if addr == "" {
		return nil
	}
	h.metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	h.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func(srv *http.Server) {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.L.WithError(err).WithField("addr", srv.Addr).Error("facade: metrics endpoint failed")
		}
	}(h.server)
	log.L.WithField("addr", addr).Info("metrics endpoint listening")
	return nil
}

// Options returns the socket options binding a socket to this instance.
func (h *Hioload) Options() []socket.Option {
	c := h.store.GetSnapshot()
	return []socket.Option{
		socket.WithReactor(h.reactor),
		socket.WithResolver(h.resolver),
		socket.WithMetrics(h.metrics),
		socket.WithConfig(c),
		socket.WithBufferPool(h.buffers.GetPool(c.ReadBufferSize)),
	}
}

// NewSocket creates an unconnected socket destroyed by Shutdown.
func (h *Hioload) NewSocket(handler api.Handler, opts ...socket.Option) *socket.Socket {
	s := socket.New(handler, append(h.Options(), opts...)...)
	h.track(s)
	return s
}

// Dial connects a new socket using the configured connect timeout.
func (h *Hioload) Dial(ctx context.Context, host, service string, udp bool, handler api.Handler) (*socket.Socket, error) {
	s := h.NewSocket(handler)
	if t := h.store.GetSnapshot().ConnectTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	if err := s.ConnectContext(ctx, host, service, udp); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// Listen starts a listener. Sockets made by factory are owned as well.
// handler receives the listener's own errors and may be nil.
func (h *Hioload) Listen(bindAddress, service string, udp bool, factory socket.Factory, handler api.Handler) (*socket.Socket, error) {
	s := h.NewSocket(handler)
	owned := func() (*socket.Socket, error) {
		c, err := factory()
		if err == nil && c != nil {
			h.track(c)
		}
		return c, err
	}
	if err := s.Listen(owned, bindAddress, service, udp); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// ListenUDP starts a datagram listener calling cb per datagram.
func (h *Hioload) ListenUDP(bindAddress, service string, cb socket.DatagramFunc) (*socket.Socket, error) {
	s, err := socket.ListenUDP(bindAddress, service, cb, h.Options()...)
	if err != nil {
		return nil, err
	}
	h.track(s)
	return s, nil
}

func (h *Hioload) track(s *socket.Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, o := range h.sockets {
		if o.State() == socket.Destroyed {
			delete(h.sockets, id)
		}
	}
	if h.closed {
		s.Destroy()
		return
	}
	h.sockets[s.ID()] = s
}

func (h *Hioload) owned() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sockets)
}

// Reload re-reads path over the current configuration and applies it.
func (h *Hioload) Reload(path string) error { return h.store.Reload(path) }

// SetConfig validates and applies c.
func (h *Hioload) SetConfig(c control.Config) error { return h.store.SetConfig(c) }

// OnReload registers fn to run after every applied configuration.
func (h *Hioload) OnReload(fn func(control.Config)) { h.store.OnReload(fn) }

// Config returns the current configuration.
func (h *Hioload) Config() control.Config { return h.store.GetSnapshot() }

// Reactor returns the shared reactor.
func (h *Hioload) Reactor() *reactor.Reactor { return h.reactor }

// Metrics returns the metrics sink of all sockets of this instance.
func (h *Hioload) Metrics() *control.Metrics { return h.metrics }

// DumpState returns every debug probe.
func (h *Hioload) DumpState() map[string]any { return h.probes.DumpState() }

// Shutdown destroys the owned sockets, stops the metrics endpoint and
// closes the reactor.
func (h *Hioload) Shutdown() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	owned := make([]*socket.Socket, 0, len(h.sockets))
	for _, s := range h.sockets {
		owned = append(owned, s)
	}
	h.sockets = nil
	srv := h.server
	h.mu.Unlock()

	for _, s := range owned {
		s.Destroy()
	}
	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = errors.Wrap(srv.Shutdown(ctx), "facade: stop metrics endpoint")
		cancel()
	}
	h.waitOwned(owned, time.Second)
	h.reactor.Close()
	return err
}

// waitOwned gives destroyed sockets a chance to finalize on the reactor.
func (h *Hioload) waitOwned(owned []*socket.Socket, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for _, s := range owned {
		for s.State() != socket.Destroyed && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}
}
