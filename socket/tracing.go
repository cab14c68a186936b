package socket

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kleeedolinux/socketio-client/socket"

func newTracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// startConnectSpan covers one transport open, from dial to handshake.
func (m *Manager) startConnectSpan(attempt int, transportName string) trace.Span {
	_, span := m.tracer.Start(context.Background(), "socketio.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("socketio.manager_id", m.id),
			attribute.String("socketio.uri", m.uri),
			attribute.String("socketio.transport", transportName),
			attribute.Int("socketio.attempt", attempt),
		),
	)
	return span
}

// startAckSpan covers an emit that waits for an acknowledgement.
func (s *Socket) startAckSpan(event string, id uint32) trace.Span {
	_, span := s.manager.tracer.Start(context.Background(), "socketio.ack "+event,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("socketio.namespace", s.nsp),
			attribute.String("socketio.event", event),
			attribute.Int64("socketio.ack_id", int64(id)),
		),
	)
	return span
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
