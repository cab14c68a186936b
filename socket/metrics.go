package socket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kleeedolinux/socketio-client/socket/parser"
)

// Metrics exports client counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	packetsSent       *prometheus.CounterVec
	packetsReceived   *prometheus.CounterVec
	decodeErrors      prometheus.Counter
	reconnectAttempts prometheus.Counter
	reconnectFailures prometheus.Counter
	ackTimeouts       prometheus.Counter
	connectedSockets  prometheus.Gauge
}

// NewMetrics registers the client metrics with reg, or with the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socketio",
			Subsystem: "client",
			Name:      "packets_sent_total",
			Help:      "Packets written to the transport, by packet type",
		}, []string{"type"}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "socketio",
			Subsystem: "client",
			Name:      "packets_received_total",
			Help:      "Packets decoded from the transport, by packet type",
		}, []string{"type"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socketio",
			Subsystem: "client",
			Name:      "decode_errors_total",
			Help:      "Frames dropped because they could not be decoded",
		}),
		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socketio",
			Subsystem: "client",
			Name:      "reconnect_attempts_total",
			Help:      "Reconnection attempts started",
		}),
		reconnectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socketio",
			Subsystem: "client",
			Name:      "reconnect_failures_total",
			Help:      "Reconnection cycles that gave up",
		}),
		ackTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "socketio",
			Subsystem: "client",
			Name:      "ack_timeouts_total",
			Help:      "Acknowledgements that timed out",
		}),
		connectedSockets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "socketio",
			Subsystem: "client",
			Name:      "connected_sockets",
			Help:      "Namespaces currently connected",
		}),
	}
}

func (m *Metrics) packetSent(t parser.Type) {
	if m == nil {
		return
	}
	m.packetsSent.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) packetReceived(t parser.Type) {
	if m == nil {
		return
	}
	m.packetsReceived.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) decodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) reconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) reconnectFailed() {
	if m == nil {
		return
	}
	m.reconnectFailures.Inc()
}

func (m *Metrics) ackTimeout() {
	if m == nil {
		return
	}
	m.ackTimeouts.Inc()
}

func (m *Metrics) socketConnected() {
	if m == nil {
		return
	}
	m.connectedSockets.Inc()
}

func (m *Metrics) socketDisconnected() {
	if m == nil {
		return
	}
	m.connectedSockets.Dec()
}
