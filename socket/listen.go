// File: socket/listen.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listening sockets. TCP listeners hand each accepted connection to a
// factory-made child; UDP listeners demultiplex datagrams by sender into
// children over virtual connections.

package socket

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/momentics/hioload-sock/api"
)

// Factory creates the socket adopting an incoming connection. Returning an
// error or a nil socket rejects the connection.
type Factory func() (*Socket, error)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Listen binds bindAddress:service and starts accepting. An empty
// bindAddress listens on every local address; service "0" picks an
// ephemeral port readable with GetLocalPort. Bind errors are returned
// synchronously. With udp set, datagrams are demultiplexed by sender: the
// first datagram of a new sender creates a child through factory and each
// datagram is one OnRead of that child.
func (s *Socket) Listen(factory Factory, bindAddress, service string, udp bool) error {
	if factory == nil {
		return api.ErrInvalidArgument.Wrap("listen", errors.New("nil factory"))
	}
	return s.listen(bindAddress, service, udp, factory, nil)
}

func (s *Socket) listen(bindAddress, service string, udp bool, factory Factory, cb DatagramFunc) error {
	lock, ok := s.life.TryLock()
	if !ok {
		return api.ErrDestroyed
	}
	defer lock.Release()
	if s.life.DestroyRequested() || !s.casState(Unconnected, Listening) {
		return s.stateError()
	}
	ctx := context.Background()
	network := networkOf(udp)
	addr, err := s.bindAddr(ctx, network, bindAddress, service)
	if err != nil {
		s.setState(Unconnected)
		return err
	}
	lc := net.ListenConfig{}
	if s.opts.reusePort {
		lc.Control = reusePortControl
	}
	if udp {
		pc, err := lc.ListenPacket(ctx, network, addr)
		if err != nil {
			s.setState(Unconnected)
			return classify("listen", err, api.Endpoint{})
		}
		uc := pc.(*net.UDPConn)
		local := api.EndpointFromAddr(uc.LocalAddr())
		s.local.Store(&local)
		s.logger().WithField("local", local.String()).Debug("listening for datagrams")
		s.post(func() { s.installPacket(uc, factory, cb) })
		return nil
	}
	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		s.setState(Unconnected)
		return classify("listen", err, api.Endpoint{})
	}
	local := api.EndpointFromAddr(ln.Addr())
	s.local.Store(&local)
	s.logger().WithField("local", local.String()).Debug("listening")
	s.post(func() { s.installListener(ln, factory) })
	return nil
}

// bindAddr turns the bind host into a literal address. The empty host is
// kept empty so the runtime opens a dual-stack wildcard socket.
func (s *Socket) bindAddr(ctx context.Context, network, host, service string) (string, error) {
	eps, err := s.opts.resolver.Resolve(ctx, network, host, service)
	if err != nil {
		return "", err
	}
	if host == "" {
		return net.JoinHostPort("", strconv.Itoa(eps[0].Port())), nil
	}
	return eps[0].String(), nil
}

func (s *Socket) installListener(ln net.Listener, factory Factory) {
	if s.life.DestroyRequested() || s.tornDown {
		_ = ln.Close()
		return
	}
	s.ln = ln
	s.lnClose = onceCloser(ln)
	s.factory = factory
	s.closing = false
	s.acceptNext()
}

func (s *Socket) acceptNext() {
	if s.ln == nil || s.life.DestroyRequested() {
		return
	}
	lock, ok := s.life.TryLock()
	if !ok {
		return
	}
	ln := s.ln
	s.strand.AsyncAccept(ln, func(c net.Conn, err error) {
		defer lock.Release()
		s.onAccept(ln, c, err)
	})
}

func (s *Socket) onAccept(ln net.Listener, c net.Conn, err error) {
	if s.ln != ln || s.life.DestroyRequested() {
		if c != nil {
			_ = c.Close()
		}
		return
	}
	if err != nil {
		if s.closing || errors.Is(err, net.ErrClosed) {
			s.listenerEnded(api.ErrClosed.Wrap("accept", nil).At(s.LocalEndpoint()))
			return
		}
		s.callError(classify("accept", err, s.LocalEndpoint()))
		s.retryAfterBackoff(s.acceptNext)
		return
	}
	s.backoff = 0
	s.adoptStream(c)
	s.acceptNext()
}

// retryAfterBackoff reschedules next with a delay doubling from 5ms to 1s.
func (s *Socket) retryAfterBackoff(next func()) {
	if s.backoff == 0 {
		s.backoff = minAcceptBackoff
	} else if s.backoff *= 2; s.backoff > maxAcceptBackoff {
		s.backoff = maxAcceptBackoff
	}
	lock, ok := s.life.TryLock()
	if !ok {
		return
	}
	time.AfterFunc(s.backoff, func() {
		s.post(func() {
			defer lock.Release()
			next()
		})
	})
}

// admit takes a connection slot. The returned release is idempotent.
func (s *Socket) admit() (func(), bool) {
	if s.sem == nil {
		return func() {}, true
	}
	if !s.sem.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { s.sem.Release(1) }) }, true
}

func (s *Socket) adoptStream(c net.Conn) {
	release, ok := s.admit()
	if !ok {
		s.reject(c, "connection limit reached")
		return
	}
	child := s.callFactory()
	if child == nil || !child.adopt(c, false, release) {
		release()
		s.reject(c, "factory rejected connection")
		return
	}
	s.opts.metrics.Accepted()
}

func (s *Socket) reject(c net.Conn, why string) {
	if c != nil {
		_ = c.Close()
	}
	s.opts.metrics.Rejected()
	s.logger().WithField("reason", why).Debug("connection rejected")
}

// callFactory runs the factory; an error, a nil result or a panic yield nil.
func (s *Socket) callFactory() (child *Socket) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().WithField("panic", r).Error("socket: factory panicked")
			child = nil
		}
	}()
	child, err := s.factory()
	if err != nil {
		s.logger().WithError(err).Debug("factory refused connection")
		return nil
	}
	return child
}

// adopt makes c the connection of an unconnected socket.
func (s *Socket) adopt(c net.Conn, datagram bool, release func()) bool {
	if s.life.DestroyRequested() || !s.casState(Unconnected, Connecting) {
		return false
	}
	s.established(c, datagram, release)
	return true
}

// closeListener stops accepting; the loop then ends the listener.
func (s *Socket) closeListener() {
	s.closing = true
	if s.lnClose != nil {
		_ = s.lnClose()
	}
	if s.pcClose != nil {
		_ = s.pcClose()
	}
}

// listenerEnded reports the terminal error of a listener and destroys it.
func (s *Socket) listenerEnded(err error) {
	if s.lnClose != nil {
		_ = s.lnClose()
	}
	if s.pcClose != nil {
		_ = s.pcClose()
	}
	for _, p := range s.peers {
		p.closeWithError(api.ErrClosed)
	}
	s.peers = nil
	s.ln, s.pc = nil, nil
	s.closing = false
	s.callError(err)
	s.Destroy()
}

// demux routes one datagram of a Listen(udp) socket to its sender's child.
func (s *Socket) demux(pc *net.UDPConn, data []byte, from *net.UDPAddr, dst netip.Addr) {
	ap := from.AddrPort()
	key := peerKey(netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()))
	if p, ok := s.peers[key]; ok {
		p.deliver(bytes.Clone(data))
		return
	}
	release, ok := s.admit()
	if !ok {
		s.reject(nil, "connection limit reached")
		return
	}
	child := s.callFactory()
	if child == nil {
		release()
		s.reject(nil, "factory rejected datagram sender")
		return
	}
	p := newUDPPeerConn(pc, from, s.peerLocalAddr(dst), s.replyOOB(dst))
	p.onClose = func() {
		release()
		s.post(func() {
			if s.peers[key] == p {
				delete(s.peers, key)
			}
		})
	}
	if !child.adopt(p, true, nil) {
		p.closeWithError(api.ErrClosed)
		s.reject(nil, "factory socket not reusable")
		return
	}
	s.peers[key] = p
	s.opts.metrics.Accepted()
	p.deliver(bytes.Clone(data))
}
