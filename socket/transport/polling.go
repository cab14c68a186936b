package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketio-client/debug"
)

// PollingTransport speaks engine.io over HTTP long-polling: a GET per batch
// of inbound packets and a POST per batch of outbound packets.
type PollingTransport struct {
	mu        sync.Mutex
	sendMu    sync.Mutex
	client    *http.Client
	target    string
	headers   http.Header
	query     url.Values
	path      string
	handshake Handshake
	connected bool
	closed    bool

	ctx        context.Context
	cancelFunc context.CancelFunc

	timeout time.Duration
	log     zerolog.Logger
}

type PollingOption func(*PollingTransport)

func WithPollingHeaders(headers http.Header) PollingOption {
	return func(t *PollingTransport) {
		for k, v := range headers {
			t.headers[k] = append([]string(nil), v...)
		}
	}
}

func WithPollingQuery(query url.Values) PollingOption {
	return func(t *PollingTransport) {
		t.query = query
	}
}

func WithPollingPath(path string) PollingOption {
	return func(t *PollingTransport) {
		t.path = path
	}
}

// WithHTTPClient replaces the client used for every request.
func WithHTTPClient(c *http.Client) PollingOption {
	return func(t *PollingTransport) {
		t.client = c
	}
}

// WithRequestTimeout bounds handshake and send requests. Poll requests are
// bounded by the heartbeat announced in the handshake instead.
func WithRequestTimeout(timeout time.Duration) PollingOption {
	return func(t *PollingTransport) {
		t.timeout = timeout
	}
}

func WithPollingLogger(l zerolog.Logger) PollingOption {
	return func(t *PollingTransport) {
		t.log = l
	}
}

func NewPollingTransport(opts ...PollingOption) *PollingTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &PollingTransport{
		client:     &http.Client{},
		headers:    make(http.Header),
		path:       DefaultPath,
		ctx:        ctx,
		cancelFunc: cancel,
		timeout:    30 * time.Second,
		log:        debug.Logger(),
	}

	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("component", "transport").Str("transport", "polling").Logger()

	return t
}

// Polling returns a Factory producing long-polling transports with opts.
func Polling(opts ...PollingOption) Factory {
	return func() Transport {
		return NewPollingTransport(opts...)
	}
}

func (t *PollingTransport) Name() string {
	return "polling"
}

func (t *PollingTransport) Handshake() Handshake {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handshake
}

func (t *PollingTransport) Open(ctx context.Context, uri string, events Events) error {
	t.mu.Lock()
	if t.connected || t.closed {
		t.mu.Unlock()
		return errors.New("transport: polling already used")
	}
	t.mu.Unlock()

	target, err := endpoint(uri, t.path, t.Name(), t.query, false)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	body, err := t.do(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	packets, err := decodePayload(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	if len(packets) == 0 {
		return fmt.Errorf("%w: empty response", ErrBadHandshake)
	}
	hs, err := parseHandshake(append([]byte{packets[0].typ}, packets[0].data...))
	if err != nil {
		return err
	}

	u, _ := url.Parse(target)
	q := u.Query()
	q.Set("sid", hs.SID)
	u.RawQuery = q.Encode()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.target = u.String()
	t.handshake = hs
	t.connected = true
	t.mu.Unlock()

	t.log.Debug().Str("sid", hs.SID).Msg("connected")
	events.OnOpen()

	if len(packets) > 1 && !t.dispatch(packets[1:], events) {
		return nil
	}
	go t.poll(hs.HeartbeatTimeout(), events)

	return nil
}

func (t *PollingTransport) poll(heartbeat time.Duration, events Events) {
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		ctx := t.ctx
		var cancel context.CancelFunc = func() {}
		if heartbeat > 0 {
			ctx, cancel = context.WithTimeout(t.ctx, heartbeat)
		}
		body, err := t.do(ctx, http.MethodGet, t.url(), nil)
		timedOut := ctx.Err() == context.DeadlineExceeded
		cancel()

		if err != nil {
			if t.isClosed() {
				return
			}
			if timedOut {
				err = ErrPingTimeout
			}
			t.log.Debug().Err(err).Msg("poll failed")
			t.markDisconnected()
			events.OnError(err)
			return
		}

		packets, err := decodePayload(body)
		if err != nil {
			t.markDisconnected()
			events.OnError(err)
			return
		}
		if !t.dispatch(packets, events) {
			return
		}
	}
}

// dispatch delivers packets and reports whether polling should continue.
func (t *PollingTransport) dispatch(packets []eioPacket, events Events) bool {
	for _, p := range packets {
		switch p.typ {
		case packetMessage:
			events.OnMessage(Frame{Data: p.data, Binary: p.binary})
		case packetPing:
			if err := t.post(encodeControl(packetPong)); err != nil {
				t.log.Debug().Err(err).Msg("pong failed")
			}
		case packetClose:
			t.markDisconnected()
			t.cancelFunc()
			events.OnClose("transport close")
			return false
		case packetNoop, packetPong, packetOpen:
		default:
			t.log.Debug().Uint8("type", p.typ).Msg("unknown engine.io packet")
		}
	}
	return true
}

func (t *PollingTransport) Send(frames ...Frame) error {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return t.post(encodePayload(frames))
}

func (t *PollingTransport) post(body []byte) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	_, err := t.do(ctx, http.MethodPost, t.url(), body)
	return err
}

func (t *PollingTransport) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for k, values := range t.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain; charset=UTF-8")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: %s %s: %s - %s", method, req.URL.Path, resp.Status, truncate(data))
	}
	return data, nil
}

func (t *PollingTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	connected := t.connected
	t.connected = false
	t.mu.Unlock()

	if connected {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := t.do(ctx, http.MethodPost, t.url(), encodeControl(packetClose)); err != nil {
			t.log.Debug().Err(err).Msg("error sending close packet")
		}
	}

	t.cancelFunc()
	return nil
}

func (t *PollingTransport) url() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

func (t *PollingTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *PollingTransport) markDisconnected() {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()
}
