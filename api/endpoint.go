// File: api/endpoint.go
// Author: momentics <momentics@gmail.com>
//
// Endpoint identifies one side of a connection: an (address, port) pair.

package api

import (
	"net"
	"net/netip"
	"strconv"
)

// Endpoint is a comparable (address, port) pair. The zero value is invalid.
type Endpoint struct {
	ap netip.AddrPort
}

// NewEndpoint builds an endpoint from an address and port.
func NewEndpoint(addr netip.Addr, port uint16) Endpoint {
	return Endpoint{ap: netip.AddrPortFrom(addr.Unmap(), port)}
}

// ParseEndpoint parses "host:port" where host is a literal address.
func ParseEndpoint(s string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Endpoint{}, ErrInvalidArgument.Wrap("parse endpoint", err)
	}
	return NewEndpoint(ap.Addr(), ap.Port()), nil
}

// EndpointFromAddr converts a *net.TCPAddr or *net.UDPAddr.
// Other address types yield the zero Endpoint.
func EndpointFromAddr(a net.Addr) Endpoint {
	switch v := a.(type) {
	case *net.TCPAddr:
		if v == nil {
			return Endpoint{}
		}
		return Endpoint{ap: addrPort(v.IP, v.Port)}
	case *net.UDPAddr:
		if v == nil {
			return Endpoint{}
		}
		return Endpoint{ap: addrPort(v.IP, v.Port)}
	}
	return Endpoint{}
}

func addrPort(ip net.IP, port int) netip.AddrPort {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		if len(ip) != 0 {
			return netip.AddrPort{}
		}
		addr = netip.IPv6Unspecified()
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(port))
}

// Addr returns the address part.
func (e Endpoint) Addr() netip.Addr { return e.ap.Addr() }

// Port returns the port part.
func (e Endpoint) Port() int { return int(e.ap.Port()) }

// AddrPort returns the netip representation.
func (e Endpoint) AddrPort() netip.AddrPort { return e.ap }

// IsValid reports whether the endpoint carries an address.
func (e Endpoint) IsValid() bool { return e.ap.IsValid() }

// String returns host:port, with brackets around IPv6 addresses.
func (e Endpoint) String() string {
	if !e.ap.IsValid() {
		return ""
	}
	return net.JoinHostPort(e.ap.Addr().String(), strconv.Itoa(int(e.ap.Port())))
}

// UDPAddr converts to a *net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(e.ap)
}
