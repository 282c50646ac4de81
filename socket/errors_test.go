package socket

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/momentics/hioload-sock/api"
)

func TestClassify(t *testing.T) {
	ep := api.NewEndpoint(netip.MustParseAddr("192.0.2.1"), 80)
	cases := []struct {
		op   string
		err  error
		want *api.Error
	}{
		{"read", io.EOF, api.ErrEOF},
		{"read", fmt.Errorf("wrapped: %w", net.ErrClosed), api.ErrClosed},
		{"read", os.ErrDeadlineExceeded, api.ErrTimeout},
		{"connect", errors.New("mystery"), api.ErrConnectFailed},
		{"write", errors.New("mystery"), api.ErrIO},
		{"resolve", api.ErrUnknownHost.Wrap("resolve", nil), api.ErrUnknownHost},
	}
	for _, tc := range cases {
		got := classify(tc.op, tc.err, ep)
		assert.Check(t, errors.Is(got, tc.want), "classify(%q, %v) = %v, want %v", tc.op, tc.err, got, tc.want)
	}

	var ae *api.Error
	assert.Assert(t, errors.As(classify("read", io.EOF, ep), &ae))
	assert.Equal(t, ae.Op, "read")
	assert.Equal(t, ae.Endpoint, ep)
	assert.Assert(t, errors.Is(ae, io.EOF))
	assert.NilError(t, classify("read", nil, ep))
}

func TestParseUnconsumed(t *testing.T) {
	assert.Equal(t, ParseUnconsumed("discard"), DiscardUnconsumed)
	assert.Equal(t, ParseUnconsumed("keep"), KeepUnconsumed)
	assert.Equal(t, ParseUnconsumed(""), KeepUnconsumed)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, Connected.String(), "connected")
	assert.Equal(t, Destroyed.String(), "destroyed")
}
