// File: reactor/ops.go
// Author: momentics <momentics@gmail.com>
//
// Asynchronous network operations. Each op performs its blocking call on a
// parked goroutine and posts exactly one completion to the strand.

package reactor

import (
	"context"
	"net"

	"github.com/momentics/hioload-sock/api"
)

// Async runs op off the execution context and delivers its result to done
// on s. If the reactor was closed meanwhile, done runs on the op goroutine.
func Async[T any](s *Strand, op func() (T, error), done func(T, error)) {
	s.r.inflight.Add(1)
	go func() {
		v, err := op()
		s.r.inflight.Add(-1)
		if done == nil {
			return
		}
		if perr := s.Post(func() { done(v, err) }); perr != nil {
			done(v, err)
		}
	}()
}

// AsyncRead reads once from c into buf.
func (s *Strand) AsyncRead(c net.Conn, buf []byte, done func(n int, err error)) {
	Async(s, func() (int, error) { return c.Read(buf) }, done)
}

// AsyncWrite writes every buffer of bufs to c, vectored where the
// connection supports it.
func (s *Strand) AsyncWrite(c net.Conn, bufs net.Buffers, done func(n int64, err error)) {
	Async(s, func() (int64, error) { return bufs.WriteTo(c) }, done)
}

// AsyncSend writes p to c in one Write call. On a datagram connection that
// is exactly one datagram, empty ones included.
func (s *Strand) AsyncSend(c net.Conn, p []byte, done func(n int, err error)) {
	Async(s, func() (int, error) { return c.Write(p) }, done)
}

// AsyncAccept waits for the next connection on l.
func (s *Strand) AsyncAccept(l net.Listener, done func(c net.Conn, err error)) {
	Async(s, l.Accept, done)
}

// AsyncDial connects to addr with d.
func (s *Strand) AsyncDial(ctx context.Context, d *net.Dialer, network, addr string, done func(c net.Conn, err error)) {
	Async(s, func() (net.Conn, error) { return d.DialContext(ctx, network, addr) }, done)
}

// AsyncResolve resolves host and service with res.
func (s *Strand) AsyncResolve(ctx context.Context, res api.Resolver, network, host, service string, done func([]api.Endpoint, error)) {
	Async(s, func() ([]api.Endpoint, error) { return res.Resolve(ctx, network, host, service) }, done)
}

// UDPMessage is the result of a datagram receive.
type UDPMessage struct {
	N    int
	OOBN int
	From *net.UDPAddr
}

// AsyncReadMsgUDP receives one datagram and its control messages.
func (s *Strand) AsyncReadMsgUDP(c *net.UDPConn, buf, oob []byte, done func(UDPMessage, error)) {
	Async(s, func() (UDPMessage, error) {
		n, oobn, _, from, err := c.ReadMsgUDP(buf, oob)
		return UDPMessage{N: n, OOBN: oobn, From: from}, err
	}, done)
}

// AsyncWriteMsgUDP sends p to addr with control messages oob. A nil addr
// sends on a connected socket.
func (s *Strand) AsyncWriteMsgUDP(c *net.UDPConn, p, oob []byte, addr *net.UDPAddr, done func(n int, err error)) {
	Async(s, func() (int, error) {
		n, _, err := c.WriteMsgUDP(p, oob, addr)
		return n, err
	}, done)
}
