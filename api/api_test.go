package api_test

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"testing"

	"github.com/momentics/hioload-sock/api"
)

func TestEndpoint(t *testing.T) {
	ep, err := api.ParseEndpoint("[::ffff:10.0.0.1]:80")
	if err != nil {
		t.Fatal(err)
	}
	if ep.String() != "10.0.0.1:80" || ep.Port() != 80 {
		t.Errorf("got %s port %d, want unmapped 10.0.0.1:80", ep, ep.Port())
	}
	v6 := api.NewEndpoint(netip.MustParseAddr("::1"), 53)
	if v6.String() != "[::1]:53" {
		t.Errorf("v6 = %s", v6)
	}
	if got := api.EndpointFromAddr(&net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 7}); got.String() != "192.0.2.1:7" {
		t.Errorf("from UDPAddr = %s", got)
	}
	ua := api.NewEndpoint(netip.MustParseAddr("::ffff:192.0.2.1"), 7).UDPAddr()
	if !ua.IP.Equal(net.IPv4(192, 0, 2, 1)) || ua.Port != 7 || api.EndpointFromAddr(ua).String() != "192.0.2.1:7" {
		t.Errorf("UDPAddr = %v", ua)
	}
	if api.EndpointFromAddr(nil).IsValid() || api.EndpointFromAddr((*net.TCPAddr)(nil)).IsValid() {
		t.Error("nil addresses must give the zero Endpoint")
	}
	if _, err := api.ParseEndpoint("localhost:80"); api.CodeOf(err) != api.ErrCodeInvalidArgument {
		t.Errorf("ParseEndpoint(name) = %v", err)
	}
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", api.ErrConnReset.Wrap("read", cause))
	if !errors.Is(err, api.ErrConnReset) {
		t.Error("wrapped error does not match its sentinel")
	}
	if errors.Is(err, api.ErrEOF) {
		t.Error("same code, different message must not match")
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if api.CodeOf(err) != api.ErrCodeTransport {
		t.Errorf("code = %v", api.CodeOf(err))
	}
	if api.CodeOf(nil) != api.ErrCodeOK || api.CodeOf(cause) != api.ErrCodeInternal {
		t.Error("CodeOf of nil or plain errors")
	}
	if api.ErrConnReset.Op != "" {
		t.Error("Wrap modified the sentinel")
	}
}

func TestHandlerFuncsDefaults(t *testing.T) {
	if n := api.NopHandler.OnRead([]byte("abc")); n != 3 {
		t.Errorf("NopHandler consumed %d", n)
	}
	api.NopHandler.OnError(api.ErrClosed)
}
