// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Socket layer telemetry. Values go to a go-metrics namespace for
// Prometheus export and are mirrored in atomics for Snapshot.

package control

import (
	"sync"
	"sync/atomic"

	metrics "github.com/docker/go-metrics"

	"github.com/momentics/hioload-sock/api"
)

// Metrics is safe for concurrent use. A nil *Metrics discards everything.
type Metrics struct {
	ns *metrics.Namespace

	live      metrics.Gauge
	accepted  metrics.Counter
	rejected  metrics.Counter
	bytesIn   metrics.Counter
	bytesOut  metrics.Counter
	dgramsIn  metrics.Counter
	dgramsOut metrics.Counter
	errs      metrics.LabeledCounter

	nLive, nAccepted, nRejected        atomic.Int64
	nBytesIn, nBytesOut                atomic.Int64
	nDgramsIn, nDgramsOut, nErrorsSeen atomic.Int64

	registerOnce sync.Once
}

// NewMetrics builds an unregistered metric set under the given namespace.
func NewMetrics(namespace string) *Metrics {
	ns := metrics.NewNamespace(namespace, "", nil)
	return &Metrics{
		ns:        ns,
		live:      ns.NewGauge("live", "The number of sockets not yet finalized", metrics.Unit("sockets")),
		accepted:  ns.NewCounter("connections_accepted", "The number of connections handed to a listener factory"),
		rejected:  ns.NewCounter("connections_rejected", "The number of connections closed because the factory refused them"),
		bytesIn:   ns.NewCounter("bytes_read", "The number of bytes delivered to read hooks"),
		bytesOut:  ns.NewCounter("bytes_written", "The number of bytes written to the network"),
		dgramsIn:  ns.NewCounter("datagrams_received", "The number of datagrams received"),
		dgramsOut: ns.NewCounter("datagrams_sent", "The number of datagrams sent"),
		errs:      ns.NewLabeledCounter("errors", "The number of errors reported to error hooks", "code"),
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide set, registered with the
// go-metrics default registry on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics("hioload_sock")
		defaultMetrics.Register()
	})
	return defaultMetrics
}

// Register exposes m through metrics.Handler. Only the first call counts.
func (m *Metrics) Register() {
	if m == nil {
		return
	}
	m.registerOnce.Do(func() { metrics.Register(m.ns) })
}

func (m *Metrics) SocketCreated() {
	if m == nil {
		return
	}
	m.live.Inc()
	m.nLive.Add(1)
}

func (m *Metrics) SocketFinalized() {
	if m == nil {
		return
	}
	m.live.Dec()
	m.nLive.Add(-1)
}

func (m *Metrics) Accepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.nAccepted.Add(1)
}

func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
	m.nRejected.Add(1)
}

func (m *Metrics) BytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesIn.Inc(float64(n))
	m.nBytesIn.Add(int64(n))
}

func (m *Metrics) BytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesOut.Inc(float64(n))
	m.nBytesOut.Add(int64(n))
}

func (m *Metrics) DatagramReceived() {
	if m == nil {
		return
	}
	m.dgramsIn.Inc()
	m.nDgramsIn.Add(1)
}

func (m *Metrics) DatagramSent() {
	if m == nil {
		return
	}
	m.dgramsOut.Inc()
	m.nDgramsOut.Add(1)
}

// Error counts err under its api.ErrorCode label.
func (m *Metrics) Error(err error) {
	if m == nil || err == nil {
		return
	}
	m.errs.WithValues(api.CodeOf(err).String()).Inc()
	m.nErrorsSeen.Add(1)
}

// Snapshot returns the current values keyed by metric name.
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	return map[string]int64{
		"sockets_live":         m.nLive.Load(),
		"connections_accepted": m.nAccepted.Load(),
		"connections_rejected": m.nRejected.Load(),
		"bytes_read":           m.nBytesIn.Load(),
		"bytes_written":        m.nBytesOut.Load(),
		"datagrams_received":   m.nDgramsIn.Load(),
		"datagrams_sent":       m.nDgramsOut.Load(),
		"errors":               m.nErrorsSeen.Load(),
	}
}

// Live returns the number of sockets created and not yet finalized.
func (m *Metrics) Live() int64 {
	if m == nil {
		return 0
	}
	return m.nLive.Load()
}
