// File: socket/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket is a TCP or UDP endpoint driven by a reactor strand. Hooks of the
// handler, state changes and handle operations all run on the strand; the
// blocking calls themselves are parked in the runtime netpoller.

package socket

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/containerd/log"
	"github.com/eapache/queue"
	"golang.org/x/sync/semaphore"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/lifecycle"
	"github.com/momentics/hioload-sock/reactor"
)

var nextID atomic.Uint64

// Socket is safe for concurrent use. The zero value is not usable; create
// sockets with New.
type Socket struct {
	id      uint64
	handler api.Handler
	opts    options
	strand  *reactor.Strand
	life    lifecycle.Destructible

	state   atomic.Int32
	local   atomic.Pointer[api.Endpoint]
	remote  atomic.Pointer[api.Endpoint]
	lastErr atomic.Pointer[errBox]

	// cancels a blocking Connect in progress
	connectMu     sync.Mutex
	connectCancel context.CancelFunc

	// fields below are owned by the strand
	conn        net.Conn
	connClose   func() error
	datagram    bool // one OnRead per received datagram
	connRelease func()
	pending     []byte
	buf         []byte
	wq          *queue.Queue // of *outMsg
	writing     bool
	closing     bool

	ln       net.Listener
	lnClose  func() error
	pc       *net.UDPConn
	pcClose  func() error
	pcv6     bool
	pktinfo  bool
	oob      []byte
	factory  Factory
	onDgram  DatagramFunc
	peers    map[peerKey]*udpPeerConn
	sem      *semaphore.Weighted
	backoff  time.Duration
	tornDown bool
}

type errBox struct{ err error }

// outMsg is one queued write. to and oob are only set for datagrams sent
// from a listening socket.
type outMsg struct {
	b   []byte
	to  *net.UDPAddr
	oob []byte
}

// New creates an unconnected socket. handler may be nil, in which case all
// input is consumed and errors are ignored. If handler also implements
// api.Finalizer, OnFinalize runs once during teardown.
func New(handler api.Handler, opts ...Option) *Socket {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.finish()
	if handler == nil {
		handler = api.NopHandler
	}
	s := &Socket{
		id:      nextID.Add(1),
		handler: handler,
		opts:    o,
		strand:  o.reactor.NewStrand(),
		wq:      queue.New(),
	}
	s.life.Init(s.finalize)
	if o.maxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(o.maxConnections))
	}
	s.opts.metrics.SocketCreated()
	return s
}

// ID returns a process-unique identifier.
func (s *Socket) ID() uint64 { return s.id }

// State returns the current lifecycle phase.
func (s *Socket) State() State { return State(s.state.Load()) }

// LastError returns the last error reported to OnError, or nil.
func (s *Socket) LastError() error {
	if b := s.lastErr.Load(); b != nil {
		return b.err
	}
	return nil
}

// LocalEndpoint returns the bound endpoint, or the zero Endpoint.
func (s *Socket) LocalEndpoint() api.Endpoint {
	if ep := s.local.Load(); ep != nil {
		return *ep
	}
	return api.Endpoint{}
}

// RemoteEndpoint returns the peer endpoint, or the zero Endpoint.
func (s *Socket) RemoteEndpoint() api.Endpoint {
	if ep := s.remote.Load(); ep != nil {
		return *ep
	}
	return api.Endpoint{}
}

// GetLocalPort returns the bound port, 0 when not bound.
func (s *Socket) GetLocalPort() int { return s.LocalEndpoint().Port() }

// GetRemotePort returns the peer port, 0 when not connected.
func (s *Socket) GetRemotePort() int { return s.RemoteEndpoint().Port() }

// GetDestructionLock returns a token that defers finalization until
// released. On a finalized socket the token is inert.
func (s *Socket) GetDestructionLock() *lifecycle.DestructionLock { return s.life.Lock() }

// Post runs fn on the socket strand, serialized with its hooks.
func (s *Socket) Post(fn func()) error { return s.strand.Post(fn) }

// Reactor returns the reactor the socket runs on.
func (s *Socket) Reactor() *reactor.Reactor { return s.strand.Reactor() }

// Destroyed reports whether Destroy was requested.
func (s *Socket) Destroyed() bool { return s.life.DestroyRequested() }

func (s *Socket) logger() *log.Entry {
	l := log.L.WithField("socket", s.id).WithField("state", s.State().String())
	if ep := s.remote.Load(); ep != nil {
		l = l.WithField("remote", ep.String())
	}
	return l
}

func (s *Socket) setState(st State) { s.state.Store(int32(st)) }

// casState moves atomically from one state to another.
func (s *Socket) casState(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// stateError explains why an operation needing Unconnected cannot start.
func (s *Socket) stateError() error {
	if s.life.DestroyRequested() || s.State() == Destroyed {
		return api.ErrDestroyed
	}
	return api.ErrAlreadyConnected
}

// post runs fn on the strand, or inline when the reactor is closed, so
// that lock releases and teardown still happen.
func (s *Socket) post(fn func()) {
	if err := s.strand.Post(fn); err != nil {
		fn()
	}
}

// Destroy requests teardown. It is idempotent, may be called from any
// goroutine including hooks, interrupts pending I/O and suppresses every
// hook from now on. Resources are released once the last DestructionLock
// is returned.
func (s *Socket) Destroy() {
	lock, ok := s.life.TryLock()
	if !ok {
		return
	}
	if s.life.Destroy() {
		s.connectMu.Lock()
		if s.connectCancel != nil {
			s.connectCancel()
		}
		s.connectMu.Unlock()
		s.post(s.interrupt)
	}
	lock.Release()
}

// interrupt wakes every parked operation by moving deadlines to the past.
func (s *Socket) interrupt() {
	now := time.Now()
	if s.conn != nil {
		_ = s.conn.SetDeadline(now)
	}
	if s.pc != nil {
		_ = s.pc.SetDeadline(now)
	}
	if s.ln != nil {
		if dl, ok := s.ln.(interface{ SetDeadline(time.Time) error }); ok {
			_ = dl.SetDeadline(now)
		} else {
			_ = s.ln.Close()
		}
	}
}

// finalize runs when destroy was requested and no lock is outstanding.
func (s *Socket) finalize() { s.post(s.teardown) }

func (s *Socket) teardown() {
	if s.tornDown {
		return
	}
	s.tornDown = true
	s.closeHandles()
	if s.connRelease != nil {
		s.connRelease()
		s.connRelease = nil
	}
	for _, p := range s.peers {
		p.closeWithError(api.ErrClosed)
	}
	s.peers = nil
	s.conn, s.ln, s.pc = nil, nil, nil
	s.pending = nil
	if s.buf != nil {
		s.opts.buffers.PutBuffer(s.buf)
		s.buf = nil
	}
	s.wq = queue.New()
	s.setState(Destroyed)
	s.opts.metrics.SocketFinalized()
	s.logger().Debug("socket finalized")
	if f, ok := s.handler.(api.Finalizer); ok {
		func() {
			defer s.recoverHook("OnFinalize")
			f.OnFinalize()
		}()
	}
}

// onceCloser closes c on the first call only.
func onceCloser(c io.Closer) func() error {
	var once sync.Once
	var err error
	return func() error {
		once.Do(func() { err = c.Close() })
		return err
	}
}

func (s *Socket) closeHandles() {
	for _, fn := range []func() error{s.connClose, s.lnClose, s.pcClose} {
		if fn != nil {
			_ = fn()
		}
	}
}

func (s *Socket) readBuffer() []byte {
	if s.buf == nil {
		s.buf = s.opts.buffers.GetBuffer()
	}
	return s.buf
}

func (s *Socket) recoverHook(name string) {
	if r := recover(); r != nil {
		s.logger().WithField("panic", r).Errorf("socket: %s panicked", name)
	}
}

// callRead delivers data and returns the consumed count clamped to
// [0, len(data)]. Hooks never run after Destroy.
func (s *Socket) callRead(data []byte) (n int) {
	if s.life.DestroyRequested() {
		return len(data)
	}
	n = len(data)
	func() {
		defer s.recoverHook("OnRead")
		n = s.handler.OnRead(data)
	}()
	if n < 0 {
		n = 0
	} else if n > len(data) {
		n = len(data)
	}
	return n
}

func (s *Socket) callError(err error) {
	s.lastErr.Store(&errBox{err: err})
	s.opts.metrics.Error(err)
	if s.life.DestroyRequested() {
		return
	}
	s.logger().WithError(err).Debug("socket error")
	defer s.recoverHook("OnError")
	s.handler.OnError(err)
}
