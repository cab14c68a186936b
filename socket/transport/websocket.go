package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketio-client/debug"
)

type WebSocketTransport struct {
	mu               sync.Mutex
	conn             *websocket.Conn
	dialer           *websocket.Dialer
	headers          http.Header
	query            url.Values
	path             string
	connected        bool
	closed           bool
	handshake        Handshake
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	compression      bool
	log              zerolog.Logger
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		for k, v := range headers {
			t.headers[k] = append([]string(nil), v...)
		}
	}
}

func WithQuery(query url.Values) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.query = query
	}
}

// WithPath sets the engine.io HTTP path, "/socket.io/" by default.
func WithPath(path string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.path = path
	}
}

func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.handshakeTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.writeTimeout = timeout
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.compression = enabled
	}
}

func WithDialer(d *websocket.Dialer) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.dialer = d
	}
}

func WithLogger(l zerolog.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.log = l
	}
}

func NewWebSocketTransport(opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		dialer:           websocket.DefaultDialer,
		headers:          make(http.Header),
		path:             DefaultPath,
		handshakeTimeout: 10 * time.Second,
		writeTimeout:     10 * time.Second,
		compression:      false,
		log:              debug.Logger(),
	}

	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("component", "transport").Str("transport", "websocket").Logger()

	return t
}

// WebSocket returns a Factory producing WebSocket transports with opts.
func WebSocket(opts ...WebSocketOption) Factory {
	return func() Transport {
		return NewWebSocketTransport(opts...)
	}
}

func (t *WebSocketTransport) Name() string {
	return "websocket"
}

func (t *WebSocketTransport) Handshake() Handshake {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handshake
}

func (t *WebSocketTransport) Open(ctx context.Context, uri string, events Events) error {
	t.mu.Lock()
	if t.connected || t.closed {
		t.mu.Unlock()
		return errors.New("transport: websocket already used")
	}
	t.mu.Unlock()

	target, err := endpoint(uri, t.path, t.Name(), t.query, true)
	if err != nil {
		return err
	}

	t.log.Debug().Str("url", target).Msg("connecting")

	dialer := *t.dialer
	dialer.HandshakeTimeout = t.handshakeTimeout
	if t.compression {
		dialer.EnableCompression = true
	}

	conn, _, err := dialer.DialContext(ctx, target, t.headers)
	if err != nil {
		t.log.Debug().Err(err).Msg("connection failed")
		return err
	}

	deadline := time.Now().Add(t.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_, first, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	hs, err := parseHandshake(first)
	if err != nil {
		conn.Close()
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.handshake = hs
	t.connected = true
	t.mu.Unlock()

	t.log.Debug().Str("sid", hs.SID).Int("ping_interval", hs.PingInterval).Msg("connected")
	events.OnOpen()
	go t.readLoop(conn, hs.HeartbeatTimeout(), events)

	return nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn, heartbeat time.Duration, events Events) {
	for {
		if heartbeat > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(heartbeat))
		}

		kind, message, err := conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				err = ErrPingTimeout
			}
			t.log.Debug().Err(err).Msg("read error")
			t.markDisconnected()
			events.OnError(err)
			return
		}

		if kind == websocket.BinaryMessage {
			events.OnMessage(Binary(message))
			continue
		}
		if len(message) == 0 {
			continue
		}

		switch message[0] {
		case packetMessage:
			events.OnMessage(Text(message[1:]))
		case packetPing:
			if err := t.write(websocket.TextMessage, encodeControl(packetPong)); err != nil {
				t.log.Debug().Err(err).Msg("pong failed")
			}
		case packetClose:
			t.markDisconnected()
			conn.Close()
			events.OnClose("transport close")
			return
		case packetNoop, packetPong, packetUpgrade:
		default:
			t.log.Debug().Bytes("packet", truncate(message)).Msg("unknown engine.io packet")
		}
	}
}

func (t *WebSocketTransport) Send(frames ...Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}

	for _, f := range frames {
		var err error
		if f.Binary {
			err = t.conn.WriteMessage(websocket.BinaryMessage, f.Data)
		} else {
			msg := make([]byte, 0, len(f.Data)+1)
			msg = append(msg, packetMessage)
			msg = append(msg, f.Data...)
			err = t.conn.WriteMessage(websocket.TextMessage, msg)
		}
		if err != nil {
			t.log.Debug().Err(err).Msg("send error")
			return err
		}
	}
	return nil
}

func (t *WebSocketTransport) write(kind int, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(kind, data)
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if !t.connected || t.conn == nil {
		return nil
	}

	t.log.Debug().Msg("closing connection")

	if err := t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	); err != nil {
		t.log.Debug().Err(err).Msg("error sending close message")
	}

	err := t.conn.Close()
	t.connected = false
	t.conn = nil

	return err
}

func (t *WebSocketTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *WebSocketTransport) markDisconnected() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
}
