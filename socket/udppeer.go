// File: socket/udppeer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Virtual connection of one datagram sender on a shared UDP listener.

package socket

import (
	"net"
	"net/netip"
	"os"
	"sync"
	"time"
)

type peerKey netip.AddrPort

// peerBacklog bounds datagrams queued for a child that is not reading.
const peerBacklog = 64

// udpPeerConn is a net.Conn whose reads come from the listener's demux and
// whose writes go out through the shared socket to a fixed remote.
type udpPeerConn struct {
	pc     *net.UDPConn
	remote *net.UDPAddr
	local  net.Addr

	oobMu sync.Mutex
	oob   []byte // source address control message for replies

	in        chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       error

	rd, wd  deadline
	onClose func()
}

var _ net.Conn = (*udpPeerConn)(nil)

func newUDPPeerConn(pc *net.UDPConn, remote *net.UDPAddr, local net.Addr, oob []byte) *udpPeerConn {
	if local == nil {
		local = pc.LocalAddr()
	}
	return &udpPeerConn{
		pc:     pc,
		remote: remote,
		local:  local,
		oob:    oob,
		in:     make(chan []byte, peerBacklog),
		done:   make(chan struct{}),
		rd:     makeDeadline(),
		wd:     makeDeadline(),
	}
}

// deliver queues one datagram; it is dropped when the backlog is full.
func (p *udpPeerConn) deliver(d []byte) {
	select {
	case <-p.done:
	case p.in <- d:
	default:
	}
}

// Read returns one datagram, truncated to len(b).
func (p *udpPeerConn) Read(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, p.err
	case <-p.rd.wait():
		return 0, os.ErrDeadlineExceeded
	default:
	}
	select {
	case <-p.done:
		return 0, p.err
	case <-p.rd.wait():
		return 0, os.ErrDeadlineExceeded
	case d := <-p.in:
		return copy(b, d), nil
	}
}

func (p *udpPeerConn) Write(b []byte) (int, error) {
	select {
	case <-p.done:
		return 0, p.err
	case <-p.wd.wait():
		return 0, os.ErrDeadlineExceeded
	default:
	}
	p.oobMu.Lock()
	oob := p.oob
	p.oobMu.Unlock()
	n, _, err := p.pc.WriteMsgUDP(b, oob, p.remote)
	if err != nil && oob != nil {
		p.oobMu.Lock()
		p.oob = nil
		p.oobMu.Unlock()
		n, _, err = p.pc.WriteMsgUDP(b, nil, p.remote)
	}
	return n, err
}

func (p *udpPeerConn) Close() error {
	p.closeWithError(net.ErrClosed)
	return nil
}

// closeWithError ends the connection; pending and future reads fail with err.
func (p *udpPeerConn) closeWithError(err error) {
	p.closeOnce.Do(func() {
		p.err = err
		close(p.done)
		if p.onClose != nil {
			p.onClose()
		}
	})
}

func (p *udpPeerConn) LocalAddr() net.Addr  { return p.local }
func (p *udpPeerConn) RemoteAddr() net.Addr { return p.remote }

func (p *udpPeerConn) SetDeadline(t time.Time) error {
	p.rd.set(t)
	p.wd.set(t)
	return nil
}

func (p *udpPeerConn) SetReadDeadline(t time.Time) error {
	p.rd.set(t)
	return nil
}

func (p *udpPeerConn) SetWriteDeadline(t time.Time) error {
	p.wd.set(t)
	return nil
}

// deadline closes its channel when the time passes, like net.Pipe does.
type deadline struct {
	mu     sync.Mutex
	timer  *time.Timer
	cancel chan struct{}
}

func makeDeadline() deadline {
	return deadline{cancel: make(chan struct{})}
}

func (d *deadline) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && !d.timer.Stop() {
		<-d.cancel // timer fired, wait for the close
	}
	d.timer = nil

	closed := isClosed(d.cancel)
	if t.IsZero() {
		if closed {
			d.cancel = make(chan struct{})
		}
		return
	}
	if dur := time.Until(t); dur > 0 {
		if closed {
			d.cancel = make(chan struct{})
		}
		cancel := d.cancel
		d.timer = time.AfterFunc(dur, func() { close(cancel) })
		return
	}
	if !closed {
		close(d.cancel)
	}
}

func (d *deadline) wait() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel
}

func isClosed(c chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
