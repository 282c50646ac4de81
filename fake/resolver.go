// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"context"
	"net/netip"
	"strconv"
	"sync/atomic"

	"github.com/momentics/hioload-sock/api"
)

// Resolver is an api.Resolver backed by static tables. Literal addresses
// and numeric services always resolve.
type Resolver struct {
	Hosts map[string][]netip.Addr
	Ports map[string]int

	calls atomic.Int32
}

var _ api.Resolver = (*Resolver)(nil)

// Calls returns how many times Resolve ran.
func (r *Resolver) Calls() int { return int(r.calls.Load()) }

// Resolve implements api.Resolver.
func (r *Resolver) Resolve(ctx context.Context, network, host, service string) ([]api.Endpoint, error) {
	r.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, api.ErrTimeout.Wrap("resolve", err)
	}
	port, err := strconv.Atoi(service)
	if err != nil {
		p, ok := r.Ports[service]
		if !ok {
			return nil, api.ErrUnknownService.Wrap("resolve", nil)
		}
		port = p
	}
	var addrs []netip.Addr
	switch a, err := netip.ParseAddr(host); {
	case host == "":
		addrs = []netip.Addr{netip.IPv6Unspecified()}
	case err == nil:
		addrs = []netip.Addr{a}
	default:
		addrs = r.Hosts[host]
	}
	if len(addrs) == 0 {
		return nil, api.ErrUnknownHost.Wrap("resolve", nil)
	}
	eps := make([]api.Endpoint, 0, len(addrs))
	for _, a := range addrs {
		eps = append(eps, api.NewEndpoint(a, uint16(port)))
	}
	return eps, nil
}
