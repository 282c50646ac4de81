package resolver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/momentics/hioload-sock/api"
)

type fakeLookup struct {
	hosts map[string][]netip.Addr
	ports map[string]int
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeLookup) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	addrs, ok := f.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func (f *fakeLookup) LookupPort(ctx context.Context, network, service string) (int, error) {
	p, ok := f.ports[service]
	if !ok {
		return 0, &net.DNSError{Err: "unknown port", Name: network + "/" + service}
	}
	return p, nil
}

func toStrings(eps []api.Endpoint) []string {
	out := make([]string, 0, len(eps))
	for _, e := range eps {
		out = append(out, e.String())
	}
	return out
}

func TestResolveNumeric(t *testing.T) {
	r := New(WithLookuper(&fakeLookup{}))
	eps, err := r.Resolve(context.Background(), "tcp", "127.0.0.1", "8080")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"127.0.0.1:8080"}, toStrings(eps)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	eps, err = r.Resolve(context.Background(), "udp", "[::1]", "53")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if diff := cmp.Diff([]string{"[::1]:53"}, toStrings(eps)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestResolveEmptyHostIsUnspecified(t *testing.T) {
	r := New(WithLookuper(&fakeLookup{}))
	eps, err := r.Resolve(context.Background(), "tcp4", "", "0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(eps) != 1 || !eps[0].Addr().IsUnspecified() || !eps[0].Addr().Is4() {
		t.Errorf("got %v, want 0.0.0.0:0", eps)
	}
}

func TestResolveNamesKeepOrder(t *testing.T) {
	f := &fakeLookup{
		hosts: map[string][]netip.Addr{
			"multi.test": {netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("::ffff:10.0.0.1"), netip.MustParseAddr("fe80::1")},
		},
		ports: map[string]int{"http": 80},
	}
	r := New(WithLookuper(f))
	eps, err := r.Resolve(context.Background(), "tcp", "multi.test", "http")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"10.0.0.2:80", "10.0.0.1:80", "[fe80::1]:80"}
	if diff := cmp.Diff(want, toStrings(eps)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestResolveErrors(t *testing.T) {
	f := &fakeLookup{hosts: map[string][]netip.Addr{}, ports: map[string]int{}}
	r := New(WithLookuper(f))
	ctx := context.Background()

	eps, err := r.Resolve(ctx, "tcp", "nosuch.invalid", "80")
	if !errors.Is(err, api.ErrUnknownHost) || eps != nil {
		t.Errorf("unknown host: got %v, %v", eps, err)
	}
	_, err = r.Resolve(ctx, "tcp", "127.0.0.1", "nosuchport")
	if !errors.Is(err, api.ErrUnknownService) {
		t.Errorf("unknown service: got %v", err)
	}
	_, err = r.Resolve(ctx, "tcp4", "::1", "80")
	if !errors.Is(err, api.ErrUnknownHost) {
		t.Errorf("family mismatch: got %v", err)
	}
	_, err = r.Resolve(ctx, "sctp", "127.0.0.1", "80")
	if api.CodeOf(err) != api.ErrCodeInvalidArgument {
		t.Errorf("bad network: got %v", err)
	}

	f.err = &net.DNSError{Err: "server misbehaving", Name: "x", IsTemporary: true}
	_, err = r.Resolve(ctx, "tcp", "flaky.test", "80")
	if !errors.Is(err, api.ErrResolverFailure) {
		t.Errorf("temporary: got %v", err)
	}
	if api.CodeOf(err) != api.ErrCodeResolution {
		t.Errorf("code = %v, want resolution", api.CodeOf(err))
	}
}

func TestResolveCoalescesConcurrentLookups(t *testing.T) {
	f := &fakeLookup{
		hosts: map[string][]netip.Addr{"shared.test": {netip.MustParseAddr("192.0.2.7")}},
		gate:  make(chan struct{}),
	}
	r := New(WithLookuper(f))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eps, err := r.Resolve(context.Background(), "tcp", "shared.test", "1")
			if err != nil || len(eps) != 1 {
				t.Errorf("Resolve: %v, %v", eps, err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()
	if n := f.calls.Load(); n >= 8 {
		t.Errorf("lookups = %d, want coalesced", n)
	}
}

// A caller giving up must not fail the other callers of the same lookup.
func TestResolveSharedLookupOutlivesCaller(t *testing.T) {
	f := &fakeLookup{
		hosts: map[string][]netip.Addr{"shared.test": {netip.MustParseAddr("192.0.2.7")}},
		gate:  make(chan struct{}),
	}
	r := New(WithLookuper(f))

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, "tcp", "shared.test", "1")
		first <- err
	}()
	for f.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	second := make(chan error, 1)
	go func() {
		eps, err := r.Resolve(context.Background(), "tcp", "shared.test", "1")
		if err == nil && len(eps) != 1 {
			err = errors.New("no endpoints")
		}
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, api.ErrTimeout) {
		t.Errorf("cancelled caller got %v, want ErrTimeout", err)
	}
	close(f.gate)
	select {
	case err := <-second:
		if err != nil {
			t.Errorf("second caller: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("lookups = %d, want 1", n)
	}
}

func TestResolveSystemLocalhost(t *testing.T) {
	eps, err := Default().Resolve(context.Background(), "tcp", "localhost", "0")
	if err != nil {
		t.Skipf("system resolver unavailable: %v", err)
	}
	if len(eps) == 0 || !eps[0].Addr().IsLoopback() {
		t.Errorf("localhost resolved to %v", eps)
	}
}
