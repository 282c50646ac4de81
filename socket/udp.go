// File: socket/udp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Datagram listeners: receive loop, per-datagram UDPLink replies and
// destination address tracking through packet info control messages.

package socket

import (
	"bytes"
	"errors"
	"net"
	"net/netip"
	"weak"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/reactor"
)

// DatagramFunc receives one datagram. data is only valid during the call;
// link may be kept to reply later.
type DatagramFunc func(data []byte, link *UDPLink)

// ListenUDP binds a datagram socket and calls cb for every datagram received.
// Replies go through the UDPLink passed to cb.
func ListenUDP(bindAddress, service string, cb DatagramFunc, opts ...Option) (*Socket, error) {
	if cb == nil {
		return nil, api.ErrInvalidArgument.Wrap("listen", errors.New("nil datagram callback"))
	}
	s := New(nil, opts...)
	if err := s.listen(bindAddress, service, true, nil, cb); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Socket) installPacket(pc *net.UDPConn, factory Factory, cb DatagramFunc) {
	if s.life.DestroyRequested() || s.tornDown {
		_ = pc.Close()
		return
	}
	s.pc = pc
	s.pcClose = onceCloser(pc)
	s.factory = factory
	s.onDgram = cb
	s.closing = false
	if cb == nil {
		s.peers = make(map[peerKey]*udpPeerConn)
	}
	s.enablePktinfo(pc)
	s.recvNext()
}

// enablePktinfo asks for the destination address of every datagram. Reply
// source selection is skipped where the platform refuses.
func (s *Socket) enablePktinfo(pc *net.UDPConn) {
	la, _ := pc.LocalAddr().(*net.UDPAddr)
	if la != nil && la.IP.To4() != nil {
		if err := ipv4.NewPacketConn(pc).SetControlMessage(ipv4.FlagDst, true); err != nil {
			s.logger().WithError(err).Debug("packet info unavailable")
			return
		}
		s.pcv6, s.pktinfo = false, true
		s.oob = ipv4.NewControlMessage(ipv4.FlagDst)
		return
	}
	if err := ipv6.NewPacketConn(pc).SetControlMessage(ipv6.FlagDst, true); err != nil {
		s.logger().WithError(err).Debug("packet info unavailable")
		return
	}
	s.pcv6, s.pktinfo = true, true
	s.oob = ipv6.NewControlMessage(ipv6.FlagDst)
}

func (s *Socket) recvNext() {
	if s.pc == nil || s.life.DestroyRequested() {
		return
	}
	lock, ok := s.life.TryLock()
	if !ok {
		return
	}
	pc := s.pc
	buf := s.readBuffer()
	oob := s.oob
	s.strand.AsyncReadMsgUDP(pc, buf, oob, func(m reactor.UDPMessage, err error) {
		defer lock.Release()
		s.onDatagram(pc, buf, oob, m, err)
	})
}

func (s *Socket) onDatagram(pc *net.UDPConn, buf, oob []byte, m reactor.UDPMessage, err error) {
	if s.pc != pc || s.life.DestroyRequested() {
		return
	}
	if err != nil {
		if s.closing || errors.Is(err, net.ErrClosed) {
			s.listenerEnded(api.ErrClosed.Wrap("receive", nil).At(s.LocalEndpoint()))
			return
		}
		e := classify("receive", err, s.LocalEndpoint())
		s.opts.metrics.Error(e)
		s.logger().WithError(e).Debug("datagram receive failed")
		s.retryAfterBackoff(s.recvNext)
		return
	}
	s.backoff = 0
	s.opts.metrics.DatagramReceived()
	s.opts.metrics.BytesRead(m.N)
	var dst netip.Addr
	if s.pktinfo && m.OOBN > 0 {
		dst = s.parseDst(oob[:m.OOBN])
	}
	if s.onDgram != nil {
		s.callDatagram(buf[:m.N], &UDPLink{
			sock:   weak.Make(s),
			remote: m.From,
			local:  dst,
			oob:    s.replyOOB(dst),
		})
	} else {
		s.demux(pc, buf[:m.N], m.From, dst)
	}
	s.recvNext()
}

// parseDst extracts the datagram's destination address. Malformed control
// data yields the zero Addr.
func (s *Socket) parseDst(oob []byte) netip.Addr {
	var ip net.IP
	if s.pcv6 {
		var cm ipv6.ControlMessage
		if err := cm.Parse(oob); err != nil {
			return netip.Addr{}
		}
		ip = cm.Dst
	} else {
		var cm ipv4.ControlMessage
		if err := cm.Parse(oob); err != nil {
			return netip.Addr{}
		}
		ip = cm.Dst
	}
	a, _ := netip.AddrFromSlice(ip)
	return a
}

// replyOOB builds the control message pinning a reply's source address.
func (s *Socket) replyOOB(dst netip.Addr) []byte {
	if !s.pktinfo || !dst.IsValid() || dst.IsUnspecified() {
		return nil
	}
	if s.pcv6 {
		src := dst.As16()
		return (&ipv6.ControlMessage{Src: src[:]}).Marshal()
	}
	return (&ipv4.ControlMessage{Src: dst.Unmap().AsSlice()}).Marshal()
}

func (s *Socket) peerLocalAddr(dst netip.Addr) net.Addr {
	if !dst.IsValid() || dst.IsUnspecified() {
		return nil
	}
	return api.NewEndpoint(dst, uint16(s.GetLocalPort())).UDPAddr()
}

func (s *Socket) callDatagram(data []byte, link *UDPLink) {
	if s.life.DestroyRequested() {
		return
	}
	defer s.recoverHook("datagram callback")
	s.onDgram(data, link)
}

// onDatagramSent completes one reply. A reply rejected with a pinned source
// address is resent without it and source pinning is turned off.
func (s *Socket) onDatagramSent(pc *net.UDPConn, m *outMsg, n int, err error) {
	if s.pc != pc {
		return
	}
	s.writing = false
	switch {
	case err != nil && m.oob != nil && !s.life.DestroyRequested():
		s.logger().WithError(err).Debug("reply with source address failed, resending")
		s.pktinfo = false
		m.oob = nil
		s.wq.Add(m)
	case err != nil:
		e := classify("send", err, api.EndpointFromAddr(m.to))
		s.opts.metrics.Error(e)
		s.logger().WithError(e).Debug("datagram send failed")
	default:
		s.opts.metrics.BytesWritten(n)
		s.opts.metrics.DatagramSent()
	}
	s.flush()
}

// UDPLink addresses the sender of one datagram received by ListenUDP. It
// does not keep the socket alive.
type UDPLink struct {
	sock   weak.Pointer[Socket]
	remote *net.UDPAddr
	local  netip.Addr
	oob    []byte
}

// Remote returns the sender endpoint.
func (l *UDPLink) Remote() api.Endpoint { return api.EndpointFromAddr(l.remote) }

// Local returns the address the datagram was sent to, when known.
func (l *UDPLink) Local() netip.Addr { return l.local.Unmap() }

// Reply sends p as one datagram to the sender. It fails with
// api.ErrDestroyed when the listening socket is gone.
func (l *UDPLink) Reply(p []byte) error {
	b := bytes.Clone(p)
	if b == nil {
		b = []byte{}
	}
	return l.reply(b)
}

// ReplyString sends str as one datagram to the sender.
func (l *UDPLink) ReplyString(str string) error { return l.reply([]byte(str)) }

func (l *UDPLink) reply(b []byte) error {
	s := l.sock.Value()
	if s == nil {
		return api.ErrDestroyed
	}
	lock, ok := s.life.TryLock()
	if !ok {
		return api.ErrDestroyed
	}
	defer lock.Release()
	if s.life.DestroyRequested() {
		return api.ErrDestroyed
	}
	m := &outMsg{b: b, to: l.remote, oob: l.oob}
	if err := s.strand.Post(func() { s.enqueue(m) }); err != nil {
		return err
	}
	return nil
}
