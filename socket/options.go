// File: socket/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options for Socket construction.

package socket

import (
	"net"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/control"
	"github.com/momentics/hioload-sock/pool"
	"github.com/momentics/hioload-sock/reactor"
	"github.com/momentics/hioload-sock/resolver"
)

// UnconsumedPolicy decides what happens to stream input a read hook did
// not consume.
type UnconsumedPolicy int

const (
	// KeepUnconsumed prepends the tail to the next delivery.
	KeepUnconsumed UnconsumedPolicy = iota
	// DiscardUnconsumed drops the tail.
	DiscardUnconsumed
)

// ParseUnconsumed maps the configuration names onto a policy.
func ParseUnconsumed(s string) UnconsumedPolicy {
	if s == control.UnconsumedDiscard {
		return DiscardUnconsumed
	}
	return KeepUnconsumed
}

const (
	defaultReadBuffer  = 64 * 1024
	defaultMaxBuffered = 4 * 1024 * 1024
)

type options struct {
	reactor        *reactor.Reactor
	resolver       api.Resolver
	metrics        *control.Metrics
	buffers        *pool.BytePool
	readBufferSize int
	unconsumed     UnconsumedPolicy
	maxBuffered    int
	maxConnections int
	reusePort      bool
	dialer         *net.Dialer
}

func defaultOptions() options {
	return options{
		readBufferSize: defaultReadBuffer,
		maxBuffered:    defaultMaxBuffered,
	}
}

func (o *options) finish() {
	if o.reactor == nil {
		o.reactor = reactor.Default()
	}
	if o.resolver == nil {
		o.resolver = resolver.Default()
	}
	if o.metrics == nil {
		o.metrics = control.DefaultMetrics()
	}
	if o.readBufferSize <= 0 {
		o.readBufferSize = defaultReadBuffer
	}
	if o.buffers == nil || o.buffers.Size() != o.readBufferSize {
		o.buffers = pool.DefaultPool(o.readBufferSize)
	}
	if o.dialer == nil {
		o.dialer = &net.Dialer{}
	}
}

// Option configures a Socket.
type Option func(*options)

// WithReactor runs the socket on r instead of reactor.Default().
func WithReactor(r *reactor.Reactor) Option { return func(o *options) { o.reactor = r } }

// WithResolver replaces the endpoint resolver.
func WithResolver(r api.Resolver) Option { return func(o *options) { o.resolver = r } }

// WithMetrics reports to m instead of control.DefaultMetrics().
func WithMetrics(m *control.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithReadBufferSize sets the bytes requested per read, which is also the
// largest datagram received intact.
func WithReadBufferSize(n int) Option { return func(o *options) { o.readBufferSize = n } }

// WithBufferPool takes read buffers from p. Its size wins over
// WithReadBufferSize.
func WithBufferPool(p *pool.BytePool) Option {
	return func(o *options) {
		o.buffers = p
		o.readBufferSize = p.Size()
	}
}

// WithUnconsumed selects the unconsumed input policy of stream sockets.
func WithUnconsumed(p UnconsumedPolicy) Option { return func(o *options) { o.unconsumed = p } }

// WithMaxBuffered caps kept unconsumed input; 0 disables the cap.
func WithMaxBuffered(n int) Option { return func(o *options) { o.maxBuffered = n } }

// WithMaxConnections bounds the open connections of a listener; 0 means
// unlimited.
func WithMaxConnections(n int) Option { return func(o *options) { o.maxConnections = n } }

// WithReusePort sets SO_REUSEPORT on listening handles.
func WithReusePort(on bool) Option { return func(o *options) { o.reusePort = on } }

// WithDialer uses d for outgoing connections. Its Timeout is overridden by
// the timeout passed to Connect.
func WithDialer(d *net.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithConfig applies the socket section of cfg.
func WithConfig(cfg control.Config) Option {
	return func(o *options) {
		o.readBufferSize = cfg.ReadBufferSize
		o.maxBuffered = cfg.MaxBuffered
		o.maxConnections = cfg.MaxConnections
		o.reusePort = cfg.ReusePort
		o.unconsumed = ParseUnconsumed(cfg.Unconsumed)
	}
}
