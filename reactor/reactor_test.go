package reactor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-sock/api"
)

func TestPostAndClose(t *testing.T) {
	r := New(WithWorkers(2))
	done := make(chan struct{})
	if err := r.Post(func() { close(done) }); err != nil {
		t.Fatalf("Post: %v", err)
	}
	<-done
	r.Close()
	r.Close()
	if !r.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := r.Post(func() {}); !errors.Is(err, api.ErrReactorClosed) {
		t.Errorf("Post after Close = %v, want ErrReactorClosed", err)
	}
}

func TestDumpState(t *testing.T) {
	r := New(WithWorkers(3))
	defer r.Close()
	r.NewStrand()
	r.RegisterProbe("custom", func() any { return "ok" })
	state := r.DumpState()
	if state["reactor.workers"] != 3 {
		t.Errorf("workers probe = %v, want 3", state["reactor.workers"])
	}
	if state["reactor.strands_created"] != int64(1) {
		t.Errorf("strands probe = %v, want 1", state["reactor.strands_created"])
	}
	if state["custom"] != "ok" {
		t.Errorf("custom probe = %v", state["custom"])
	}
}

func TestAsyncCompletesOnStrand(t *testing.T) {
	r := New(WithWorkers(4))
	defer r.Close()
	s := r.NewStrand()

	// a completion must wait for the task occupying the strand
	busy := make(chan struct{})
	var taskDone bool
	_ = s.Post(func() {
		<-busy
		taskDone = true
	})
	done := make(chan bool, 1)
	Async(s, func() (int, error) { return 7, nil }, func(v int, err error) {
		if v != 7 || err != nil {
			t.Errorf("completion got %d, %v", v, err)
		}
		done <- taskDone
	})
	time.Sleep(20 * time.Millisecond)
	close(busy)
	if !<-done {
		t.Error("completion ran concurrently with a strand task")
	}
}

func TestAsyncAfterCloseRunsInline(t *testing.T) {
	r := New(WithWorkers(1))
	s := r.NewStrand()
	release := make(chan struct{})
	done := make(chan error, 1)
	Async(s, func() (struct{}, error) {
		<-release
		return struct{}{}, nil
	}, func(_ struct{}, err error) { done <- err })
	r.Close()
	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("completion err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion lost after Close")
	}
}

func TestAsyncReadWriteAcceptDial(t *testing.T) {
	r := New()
	defer r.Close()
	s := r.NewStrand()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	s.AsyncAccept(ln, func(c net.Conn, err error) {
		if err != nil {
			t.Errorf("accept: %v", err)
		}
		accepted <- c
	})

	dialed := make(chan net.Conn, 1)
	s.AsyncDial(context.Background(), &net.Dialer{}, "tcp", ln.Addr().String(), func(c net.Conn, err error) {
		if err != nil {
			t.Errorf("dial: %v", err)
		}
		dialed <- c
	})
	client, server := <-dialed, <-accepted
	defer client.Close()
	defer server.Close()

	wrote := make(chan int64, 1)
	s.AsyncWrite(client, net.Buffers{[]byte("hel"), []byte("lo")}, func(n int64, err error) {
		if err != nil {
			t.Errorf("write: %v", err)
		}
		wrote <- n
	})
	if n := <-wrote; n != 5 {
		t.Fatalf("wrote %d bytes, want 5", n)
	}

	buf := make([]byte, 16)
	got := make([]byte, 0, 5)
	for len(got) < 5 {
		read := make(chan int, 1)
		s.AsyncRead(server, buf, func(n int, err error) {
			if err != nil {
				t.Errorf("read: %v", err)
			}
			read <- n
		})
		n := <-read
		got = append(got, buf[:n]...)
	}
	if string(got) != "hello" {
		t.Errorf("read %q, want hello", got)
	}
}

func TestAsyncUDP(t *testing.T) {
	r := New()
	defer r.Close()
	s := r.NewStrand()

	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	recv := make(chan UDPMessage, 1)
	buf := make([]byte, 64)
	s.AsyncReadMsgUDP(b, buf, nil, func(m UDPMessage, err error) {
		if err != nil {
			t.Errorf("recv: %v", err)
		}
		recv <- m
	})
	sent := make(chan int, 1)
	s.AsyncWriteMsgUDP(a, []byte("ping"), nil, b.LocalAddr().(*net.UDPAddr), func(n int, err error) {
		if err != nil {
			t.Errorf("send: %v", err)
		}
		sent <- n
	})
	if n := <-sent; n != 4 {
		t.Errorf("sent %d, want 4", n)
	}
	m := <-recv
	if string(buf[:m.N]) != "ping" {
		t.Errorf("received %q", buf[:m.N])
	}
	if m.From.Port != a.LocalAddr().(*net.UDPAddr).Port {
		t.Errorf("from port %d", m.From.Port)
	}
}

func TestAsyncSendKeepsDatagramBoundaries(t *testing.T) {
	r := New()
	defer r.Close()
	s := r.NewStrand()

	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	a, err := net.DialUDP("udp", nil, b.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	sent := make(chan int, 2)
	for _, p := range []string{"one", "two"} {
		s.AsyncSend(a, []byte(p), func(n int, err error) {
			if err != nil {
				t.Errorf("send: %v", err)
			}
			sent <- n
		})
	}
	<-sent
	<-sent

	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	var got []string
	for i := 0; i < 2; i++ {
		n, _, err := b.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, string(buf[:n]))
	}
	if len(got[0]) != 3 || len(got[1]) != 3 {
		t.Errorf("datagrams %q, want two of three bytes", got)
	}
}
