// File: socket/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connected transport: read loop, write queue and graceful close. Every
// function here runs on the socket strand.

package socket

import (
	"bytes"
	"net"

	"github.com/momentics/hioload-sock/api"
)

// established publishes the endpoints of c and arms it on the strand.
// release, when set, runs once the connection ends.
func (s *Socket) established(c net.Conn, datagram bool, release func()) {
	local := api.EndpointFromAddr(c.LocalAddr())
	remote := api.EndpointFromAddr(c.RemoteAddr())
	s.local.Store(&local)
	s.remote.Store(&remote)
	s.setState(Connected)
	s.post(func() { s.attach(c, datagram, release) })
}

func (s *Socket) attach(c net.Conn, datagram bool, release func()) {
	if s.life.DestroyRequested() || s.tornDown {
		_ = c.Close()
		if release != nil {
			release()
		}
		return
	}
	s.conn = c
	s.connClose = onceCloser(c)
	s.datagram = datagram
	s.connRelease = release
	s.pending = s.pending[:0]
	s.closing = false
	s.writing = false
	s.logger().Debug("connection established")
	s.readNext(c)
}

func (s *Socket) readNext(c net.Conn) {
	if s.conn != c || s.life.DestroyRequested() {
		return
	}
	lock, ok := s.life.TryLock()
	if !ok {
		return
	}
	buf := s.readBuffer()
	s.strand.AsyncRead(c, buf, func(n int, err error) {
		defer lock.Release()
		s.onRead(c, buf, n, err)
	})
}

func (s *Socket) onRead(c net.Conn, buf []byte, n int, err error) {
	if s.conn != c {
		return
	}
	if n > 0 {
		s.opts.metrics.BytesRead(n)
		if s.datagram {
			s.opts.metrics.DatagramReceived()
		}
		s.deliver(c, buf[:n])
		if s.conn != c {
			return
		}
	}
	if err != nil {
		s.endConnection(c, s.readError(err))
		return
	}
	s.readNext(c)
}

// deliver hands chunk to OnRead according to the unconsumed policy.
func (s *Socket) deliver(c net.Conn, chunk []byte) {
	if s.datagram {
		s.callRead(chunk)
		return
	}
	if len(s.pending) == 0 {
		n := s.callRead(chunk)
		if s.conn != c || n == len(chunk) || s.opts.unconsumed == DiscardUnconsumed {
			return
		}
		s.pending = append(s.pending[:0], chunk[n:]...)
	} else {
		s.pending = append(s.pending, chunk...)
		n := s.callRead(s.pending)
		if s.conn != c {
			return
		}
		rest := copy(s.pending, s.pending[n:])
		s.pending = s.pending[:rest]
	}
	if limit := s.opts.maxBuffered; limit > 0 && len(s.pending) > limit {
		s.endConnection(c, api.ErrBufferOverflow.Wrap("read", nil).At(s.RemoteEndpoint()))
	}
}

func (s *Socket) readError(err error) error {
	if s.closing {
		return api.ErrClosed.Wrap("read", nil)
	}
	return classify("read", err, s.RemoteEndpoint())
}

// endConnection closes c, returns the socket to Unconnected and reports
// err. Stale calls for a previous connection are ignored.
func (s *Socket) endConnection(c net.Conn, err error) {
	if s.conn != c {
		return
	}
	_ = s.connClose()
	s.conn, s.connClose = nil, nil
	if s.connRelease != nil {
		s.connRelease()
		s.connRelease = nil
	}
	s.pending = s.pending[:0]
	for s.wq.Length() > 0 {
		s.wq.Remove()
	}
	s.writing = false
	s.closing = false
	if !s.life.DestroyRequested() {
		s.setState(Unconnected)
	}
	s.callError(err)
}

// Send queues a copy of p. It is dropped when the socket is not connected.
func (s *Socket) Send(p []byte) { _, _ = s.Write(p) }

// SendString queues str.
func (s *Socket) SendString(str string) { _, _ = s.write([]byte(str)) }

// Write queues a copy of p and reports len(p). It fails with
// api.ErrDestroyed once Destroy was requested. A datagram socket sends p
// as exactly one datagram.
func (s *Socket) Write(p []byte) (int, error) {
	b := bytes.Clone(p)
	if b == nil {
		b = []byte{}
	}
	return s.write(b)
}

func (s *Socket) write(b []byte) (int, error) {
	if s.life.DestroyRequested() {
		return 0, api.ErrDestroyed
	}
	if err := s.strand.Post(func() { s.enqueue(&outMsg{b: b}) }); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (s *Socket) enqueue(m *outMsg) {
	switch {
	case s.life.DestroyRequested():
		return
	case s.conn != nil:
		if s.closing {
			s.logger().Debug("dropping write after close")
			return
		}
		if len(m.b) == 0 && !s.datagram {
			return
		}
	case s.pc != nil && m.to != nil:
	default:
		s.logger().Debug("dropping write on unconnected socket")
		return
	}
	s.wq.Add(m)
	if !s.writing {
		s.flush()
	}
}

// flush starts the next write. Stream sockets coalesce the whole queue
// into one vectored write; datagram sockets send one message per write.
func (s *Socket) flush() {
	if s.wq.Length() == 0 {
		if s.closing && s.conn != nil {
			_ = s.connClose()
		}
		return
	}
	lock, ok := s.life.TryLock()
	if !ok {
		return
	}
	s.writing = true
	if c := s.conn; c != nil && s.datagram {
		m := s.wq.Remove().(*outMsg)
		s.strand.AsyncSend(c, m.b, func(n int, err error) {
			defer lock.Release()
			s.onWritten(c, int64(n), err)
		})
		return
	}
	if c := s.conn; c != nil {
		bufs := make(net.Buffers, 0, s.wq.Length())
		for s.wq.Length() > 0 {
			bufs = append(bufs, s.wq.Remove().(*outMsg).b)
		}
		s.strand.AsyncWrite(c, bufs, func(n int64, err error) {
			defer lock.Release()
			s.onWritten(c, n, err)
		})
		return
	}
	m := s.wq.Remove().(*outMsg)
	pc := s.pc
	if pc == nil {
		s.writing = false
		lock.Release()
		return
	}
	if !s.pktinfo {
		m.oob = nil
	}
	s.strand.AsyncWriteMsgUDP(pc, m.b, m.oob, m.to, func(n int, err error) {
		defer lock.Release()
		s.onDatagramSent(pc, m, n, err)
	})
}

func (s *Socket) onWritten(c net.Conn, n int64, err error) {
	if s.conn != c {
		return
	}
	s.writing = false
	s.opts.metrics.BytesWritten(int(n))
	if s.datagram && err == nil {
		s.opts.metrics.DatagramSent()
	}
	if err != nil {
		if s.life.DestroyRequested() {
			return
		}
		s.endConnection(c, classify("write", err, s.RemoteEndpoint()))
		return
	}
	s.flush()
}

// Close flushes queued writes and then closes the connection. Both ends
// receive OnError once: ErrClosed locally, ErrEOF on a stream peer. On a
// listening socket Close stops accepting; the socket reports ErrClosed and
// destroys itself.
func (s *Socket) Close() {
	s.post(func() {
		switch {
		case s.tornDown:
		case s.ln != nil || (s.pc != nil && s.conn == nil):
			s.closeListener()
		case s.conn != nil:
			if s.closing {
				return
			}
			s.closing = true
			s.setState(Closing)
			if !s.writing && s.wq.Length() == 0 {
				_ = s.connClose()
			}
		}
	})
}
