package socket

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/momentics/hioload-sock/api"
)

func newTestPeer(t *testing.T) (*udpPeerConn, *net.UDPConn) {
	t.Helper()
	pc, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	assert.NilError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	remote, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	assert.NilError(t, err)
	t.Cleanup(func() { _ = remote.Close() })
	return newUDPPeerConn(pc, remote.LocalAddr().(*net.UDPAddr), nil, nil), remote
}

func TestUDPPeerReadDatagrams(t *testing.T) {
	p, _ := newTestPeer(t)
	p.deliver([]byte("coin"))
	p.deliver([]byte("pan"))
	buf := make([]byte, 16)
	n, err := p.Read(buf)
	assert.NilError(t, err)
	assert.Equal(t, string(buf[:n]), "coin")
	n, err = p.Read(buf[:2])
	assert.NilError(t, err)
	assert.Equal(t, string(buf[:n]), "pa")
}

func TestUDPPeerDeadline(t *testing.T) {
	p, _ := newTestPeer(t)
	assert.NilError(t, p.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	start := time.Now()
	_, err := p.Read(make([]byte, 1))
	assert.Assert(t, errors.Is(err, os.ErrDeadlineExceeded))
	assert.Assert(t, time.Since(start) >= 15*time.Millisecond)

	assert.NilError(t, p.SetReadDeadline(time.Time{}))
	p.deliver([]byte("x"))
	_, err = p.Read(make([]byte, 1))
	assert.NilError(t, err)

	assert.NilError(t, p.SetDeadline(time.Now()))
	_, err = p.Write([]byte("late"))
	assert.Assert(t, errors.Is(err, os.ErrDeadlineExceeded))
}

func TestUDPPeerWriteAndClose(t *testing.T) {
	p, remote := newTestPeer(t)
	closed := 0
	p.onClose = func() { closed++ }

	_, err := p.Write([]byte("reply"))
	assert.NilError(t, err)
	buf := make([]byte, 16)
	_ = remote.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := remote.ReadFromUDP(buf)
	assert.NilError(t, err)
	assert.Equal(t, string(buf[:n]), "reply")

	p.closeWithError(api.ErrClosed)
	assert.NilError(t, p.Close())
	assert.Equal(t, closed, 1)
	_, err = p.Read(buf)
	assert.Assert(t, errors.Is(err, api.ErrClosed))
	_, err = p.Write(buf)
	assert.Assert(t, errors.Is(err, api.ErrClosed))
	p.deliver([]byte("dropped"))
}
