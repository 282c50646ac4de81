// File: socket/connect.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outgoing connections: resolve, then try the candidates in order.

package socket

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/momentics/hioload-sock/api"
)

// Connect resolves host and service and connects, blocking the caller
// until success, failure or timeout. timeout <= 0 waits forever. With udp
// set the socket is a connected datagram socket using the first candidate.
// No hook fires for a failed attempt.
func (s *Socket) Connect(host, service string, udp bool, timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.ConnectContext(ctx, host, service, udp)
}

// ConnectContext is Connect bounded by ctx.
func (s *Socket) ConnectContext(ctx context.Context, host, service string, udp bool) error {
	lock, ok := s.life.TryLock()
	if !ok {
		return api.ErrDestroyed
	}
	defer lock.Release()
	if s.life.DestroyRequested() || !s.casState(Unconnected, Resolving) {
		return s.stateError()
	}
	ctx, release := s.connectContext(ctx)
	defer release()
	if s.life.DestroyRequested() {
		return api.ErrDestroyed
	}

	network := networkOf(udp)
	eps, err := s.opts.resolver.Resolve(ctx, network, host, service)
	if err != nil {
		return s.connectFailed(ctx, err, api.Endpoint{})
	}
	s.setState(Connecting)
	var last api.Endpoint
	var c net.Conn
	for i, ep := range eps {
		last = ep
		c, err = s.dialer().DialContext(ctx, network, ep.String())
		if err == nil || udp || ctx.Err() != nil {
			break
		}
		s.logger().WithError(err).WithField("candidate", i).Debug("connect candidate failed")
	}
	if err != nil {
		return s.connectFailed(ctx, err, last)
	}
	if s.life.DestroyRequested() {
		_ = c.Close()
		return api.ErrDestroyed
	}
	s.established(c, udp, nil)
	return nil
}

// ConnectAsync starts a connection and returns immediately. done, when not
// nil, runs on the socket strand with the outcome.
func (s *Socket) ConnectAsync(ctx context.Context, host, service string, udp bool, done func(error)) {
	finish := func(err error) {
		if done == nil {
			return
		}
		defer s.recoverHook("connect callback")
		done(err)
	}
	lock, ok := s.life.TryLock()
	if !ok {
		s.post(func() { finish(api.ErrDestroyed) })
		return
	}
	if s.life.DestroyRequested() || !s.casState(Unconnected, Resolving) {
		err := s.stateError()
		lock.Release()
		s.post(func() { finish(err) })
		return
	}
	ctx, release := s.connectContext(ctx)
	network := networkOf(udp)
	complete := func(c net.Conn, err error, ep api.Endpoint) {
		defer lock.Release()
		defer release()
		switch {
		case err != nil:
			err = s.connectFailed(ctx, err, ep)
		case s.life.DestroyRequested():
			_ = c.Close()
			err = api.ErrDestroyed
		default:
			s.established(c, udp, nil)
		}
		finish(err)
	}

	var dial func(eps []api.Endpoint, i int)
	dial = func(eps []api.Endpoint, i int) {
		s.strand.AsyncDial(ctx, s.dialer(), network, eps[i].String(), func(c net.Conn, err error) {
			if err != nil && !udp && i+1 < len(eps) && ctx.Err() == nil {
				dial(eps, i+1)
				return
			}
			complete(c, err, eps[i])
		})
	}
	s.strand.AsyncResolve(ctx, s.opts.resolver, network, host, service, func(eps []api.Endpoint, err error) {
		if err != nil {
			complete(nil, err, api.Endpoint{})
			return
		}
		s.setState(Connecting)
		dial(eps, 0)
	})
}

// connectContext derives a context Destroy can cancel.
func (s *Socket) connectContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	s.connectMu.Lock()
	s.connectCancel = cancel
	s.connectMu.Unlock()
	return ctx, func() {
		s.connectMu.Lock()
		s.connectCancel = nil
		s.connectMu.Unlock()
		cancel()
	}
}

func (s *Socket) dialer() *net.Dialer {
	d := *s.opts.dialer
	d.Timeout = 0
	return &d
}

func (s *Socket) connectFailed(ctx context.Context, err error, ep api.Endpoint) error {
	if !s.life.DestroyRequested() {
		s.setState(Unconnected)
	}
	switch {
	case s.life.DestroyRequested():
		return api.ErrDestroyed.Wrap("connect", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		e := api.ErrTimeout.Wrap("connect", err)
		if ep.IsValid() {
			e = e.At(ep)
		}
		return e
	}
	return classify("connect", err, ep)
}

func networkOf(udp bool) string {
	if udp {
		return "udp"
	}
	return "tcp"
}
