// File: resolver/resolver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint resolver: (network, host, service) to an ordered list of
// candidate endpoints. Identical concurrent lookups share one query.

package resolver

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/momentics/hioload-sock/api"
)

// Lookuper is the subset of *net.Resolver used for queries.
type Lookuper interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
	LookupPort(ctx context.Context, network, service string) (int, error)
}

// Resolver implements api.Resolver on top of a Lookuper.
type Resolver struct {
	lookup Lookuper
	group  singleflight.Group
}

var _ api.Resolver = (*Resolver)(nil)

// Option tunes a Resolver.
type Option func(*Resolver)

// WithLookuper replaces the system resolver, mostly for tests.
func WithLookuper(l Lookuper) Option { return func(r *Resolver) { r.lookup = l } }

// New returns a resolver using net.DefaultResolver unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{lookup: net.DefaultResolver}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultResolver *Resolver
	defaultOnce     sync.Once
)

// Default returns the process-wide resolver.
func Default() *Resolver {
	defaultOnce.Do(func() { defaultResolver = New() })
	return defaultResolver
}

// Resolve returns the candidates for host and service. network is one of
// tcp, tcp4, tcp6, udp, udp4, udp6. An empty host yields the unspecified
// address of the family. On error the list is nil and the error carries
// code api.ErrCodeResolution.
func (r *Resolver) Resolve(ctx context.Context, network, host, service string) ([]api.Endpoint, error) {
	ipNet, err := ipNetwork(network)
	if err != nil {
		return nil, err
	}
	port, err := r.port(ctx, network, service)
	if err != nil {
		return nil, err
	}
	addrs, err := r.addrs(ctx, ipNet, host)
	if err != nil {
		return nil, err
	}
	eps := make([]api.Endpoint, 0, len(addrs))
	for _, a := range addrs {
		eps = append(eps, api.NewEndpoint(a.Unmap(), port))
	}
	log.G(ctx).WithField("host", host).WithField("service", service).
		Tracef("resolver: %d candidates", len(eps))
	return eps, nil
}

func ipNetwork(network string) (string, error) {
	switch network {
	case "tcp", "udp":
		return "ip", nil
	case "tcp4", "udp4":
		return "ip4", nil
	case "tcp6", "udp6":
		return "ip6", nil
	}
	return "", api.ErrInvalidArgument.Wrap("resolve", errors.Errorf("unsupported network %q", network))
}

func (r *Resolver) port(ctx context.Context, network, service string) (uint16, error) {
	if service == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(service, 10, 16); err == nil {
		return uint16(n), nil
	}
	v, err := r.shared(ctx, "port\x00"+network+"\x00"+service, func(ctx context.Context) (any, error) {
		return r.lookup.LookupPort(ctx, network, service)
	})
	if err != nil {
		return 0, classify("lookup port", err, api.ErrUnknownService)
	}
	p := v.(int)
	if p < 0 || p > 0xffff {
		return 0, api.ErrUnknownService.Wrap("lookup port", errors.Errorf("port %d out of range", p))
	}
	return uint16(p), nil
}

func (r *Resolver) addrs(ctx context.Context, ipNet, host string) ([]netip.Addr, error) {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		if ipNet == "ip4" {
			return []netip.Addr{netip.IPv4Unspecified()}, nil
		}
		return []netip.Addr{netip.IPv6Unspecified()}, nil
	}
	if a, err := netip.ParseAddr(host); err == nil {
		if !familyMatches(ipNet, a) {
			return nil, api.ErrUnknownHost.Wrap("resolve", errors.Errorf("%s is not an %s address", host, ipNet))
		}
		return []netip.Addr{a}, nil
	}
	v, err := r.shared(ctx, "host\x00"+ipNet+"\x00"+host, func(ctx context.Context) (any, error) {
		return r.lookup.LookupNetIP(ctx, ipNet, host)
	})
	if err != nil {
		return nil, classify("lookup host", err, api.ErrUnknownHost)
	}
	addrs := v.([]netip.Addr)
	if len(addrs) == 0 {
		return nil, api.ErrUnknownHost.Wrap("lookup host", errors.Errorf("no addresses for %s", host))
	}
	// the slice is shared by every caller of the flight
	return append([]netip.Addr(nil), addrs...), nil
}

// shared joins the flight for key. The query runs detached from any one
// caller's cancellation; each caller stops waiting when its own ctx ends.
func (r *Resolver) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) { return fn(detached) })
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func familyMatches(ipNet string, a netip.Addr) bool {
	switch ipNet {
	case "ip4":
		return a.Unmap().Is4()
	case "ip6":
		return a.Is6() && !a.Is4In6()
	}
	return true
}

// classify maps a lookup error onto the resolution sentinels. Not-found
// answers become notFound; everything else is a resolver failure.
func classify(op string, err error, notFound *api.Error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return notFound.Wrap(op, err)
		case dnsErr.IsTimeout, dnsErr.IsTemporary:
			return api.ErrResolverFailure.Wrap(op, err)
		}
		// LookupPort reports unknown services without IsNotFound
		if notFound == api.ErrUnknownService && strings.Contains(dnsErr.Err, "unknown port") {
			return notFound.Wrap(op, err)
		}
		if notFound == api.ErrUnknownHost && strings.Contains(dnsErr.Err, "no such host") {
			return notFound.Wrap(op, err)
		}
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return notFound.Wrap(op, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return api.ErrTimeout.Wrap(op, err)
	}
	return api.ErrResolverFailure.Wrap(op, err)
}
