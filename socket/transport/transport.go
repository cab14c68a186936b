// Package transport carries socket.io frames over an engine.io v4
// connection, either a WebSocket or HTTP long-polling.
//
// A Transport is one physical connection attempt. It is opened once, reports
// its lifecycle through Events, and is discarded after it closes.
package transport

import (
	"context"
	"errors"
)

var (
	ErrNotConnected  = errors.New("transport: not connected")
	ErrClosed        = errors.New("transport: closed")
	ErrPingTimeout   = errors.New("transport: ping timeout")
	ErrBadHandshake  = errors.New("transport: bad handshake")
	ErrUnexpectedEOF = errors.New("transport: connection closed by peer")
)

// Frame is one transport message. Frames are immutable once handed to
// Send or delivered through Events.
type Frame struct {
	Data   []byte
	Binary bool
}

func Text(data []byte) Frame {
	return Frame{Data: data}
}

func Binary(data []byte) Frame {
	return Frame{Data: data, Binary: true}
}

// Events receives the lifecycle of a Transport. Calls arrive from transport
// goroutines; implementations hand them off rather than doing work inline.
type Events interface {
	OnOpen()
	OnMessage(Frame)
	OnError(error)
	OnClose(reason string)
}

type Transport interface {
	// Name identifies the transport, e.g. "websocket" or "polling".
	Name() string

	// Open connects to uri and starts delivering events. OnOpen fires once
	// the engine.io handshake completes. If Open returns an error no events
	// are delivered.
	Open(ctx context.Context, uri string, events Events) error

	Send(frames ...Frame) error

	// Close tears the connection down without delivering OnClose.
	Close() error
}

// Factory creates a fresh Transport for every connection attempt.
type Factory func() Transport
