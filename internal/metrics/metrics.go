// Package metrics holds the Prometheus collectors exposed by the
// admin HTTP surface: per-loop dispatch activity and WebSocket
// connection/byte counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the loop pool and
// WebSocket server report through.
type Metrics struct {
	LoopPendingOps    *prometheus.GaugeVec
	LoopDispatchTotal *prometheus.CounterVec

	ConnectedClients prometheus.Gauge

	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter

	HandshakeFailuresTotal *prometheus.CounterVec
}

// New creates and registers every collector against reg. Passing
// prometheus.NewRegistry() (rather than the global default registry)
// keeps tests hermetic, since promauto.With registers against a
// caller-supplied registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LoopPendingOps: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "iocore_loop_pending_ops",
				Help: "Number of operations currently tracked by a loop's op set.",
			},
			[]string{"loop_id"},
		),
		LoopDispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iocore_loop_dispatch_total",
				Help: "Total number of completions dispatched by a loop.",
			},
			[]string{"loop_id"},
		),
		ConnectedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "iocore_connected_clients",
				Help: "Number of WebSocket clients currently connected to the server.",
			},
		),
		BytesRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "iocore_bytes_read_total",
				Help: "Total bytes read off WebSocket connections.",
			},
		),
		BytesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "iocore_bytes_written_total",
				Help: "Total bytes written to WebSocket connections.",
			},
		),
		HandshakeFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iocore_handshake_failures_total",
				Help: "Total number of WebSocket handshakes that failed, by reason.",
			},
			[]string{"reason"},
		),
	}
}

// RecordDispatch increments the dispatch counter and sets the
// pending-op gauge for a loop in one call. ioloop.Loop does not call
// it; the dispatch and pending-op series move only when a caller does.
func (m *Metrics) RecordDispatch(loopID string, pendingOps int) {
	m.LoopDispatchTotal.WithLabelValues(loopID).Inc()
	m.LoopPendingOps.WithLabelValues(loopID).Set(float64(pendingOps))
}

// RecordHandshakeFailure increments the handshake failure counter
// for the given reason ("bad_request", "unauthorized", "timeout").
func (m *Metrics) RecordHandshakeFailure(reason string) {
	m.HandshakeFailuresTotal.WithLabelValues(reason).Inc()
}
