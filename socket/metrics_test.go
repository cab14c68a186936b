package socket

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kleeedolinux/socketio-client/socket/parser"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.packetSent(parser.Event)
	m.packetReceived(parser.Event)
	m.decodeError()
	m.reconnectAttempt()
	m.reconnectFailed()
	m.ackTimeout()
	m.socketConnected()
	m.socketDisconnected()
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	m, f, clk := newTestManager(t, WithMetrics(metrics))
	s, tr := connect(t, m, f, "/", "abc")

	if got := testutil.ToFloat64(metrics.connectedSockets); got != 1 {
		t.Errorf("Expected 1 connected socket, got %v", got)
	}

	if err := s.EmitWithAckTimeout("slow", 1, func([]parser.Value, error) {}); err != nil {
		t.Fatal(err)
	}
	tr.waitSent(t, 2)
	flush(t, m)
	clk.fire(t)
	flush(t, m)

	tr.receive(`2["news"]`, `9bad`)
	flush(t, m)

	if got := testutil.ToFloat64(metrics.packetsSent.WithLabelValues("CONNECT")); got != 1 {
		t.Errorf("Expected 1 CONNECT sent, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.packetsSent.WithLabelValues("EVENT")); got != 1 {
		t.Errorf("Expected 1 EVENT sent, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.packetsReceived.WithLabelValues("EVENT")); got != 1 {
		t.Errorf("Expected 1 EVENT received, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.ackTimeouts); got != 1 {
		t.Errorf("Expected 1 ack timeout, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.decodeErrors); got != 1 {
		t.Errorf("Expected 1 decode error, got %v", got)
	}

	tr.events.OnClose("transport close")
	flush(t, m)
	if got := testutil.ToFloat64(metrics.connectedSockets); got != 0 {
		t.Errorf("Expected 0 connected sockets, got %v", got)
	}
	clk.fire(t)
	f.next(t)
	flush(t, m)
	if got := testutil.ToFloat64(metrics.reconnectAttempts); got != 1 {
		t.Errorf("Expected 1 reconnect attempt, got %v", got)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("Expected gathered metrics, got %d (%v)", n, err)
	}
}
