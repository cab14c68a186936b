package socket

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/kleeedolinux/socketio-client/socket/parser"
	"github.com/kleeedolinux/socketio-client/socket/transport"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Manager events, registered with Manager.On.
const (
	EventOpen             = "open"
	EventClose            = "close"
	EventError            = "error"
	EventReconnectAttempt = "reconnect_attempt"
	EventReconnect        = "reconnect"
	EventReconnectError   = "reconnect_error"
	EventReconnectFailed  = "reconnect_failed"
)

// Manager owns one transport to a server and multiplexes namespaces over
// it. It reconnects with exponential backoff when the transport fails.
//
// All state changes happen on a single event loop: transport events, timer
// firings and API calls are queued and processed one at a time. Listeners
// and acknowledgement callbacks run on that loop and must not block.
type Manager struct {
	id      string
	uri     string
	opts    Options
	auth    parser.Value
	log     zerolog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	loop  *eventLoop
	sched loopScheduler
	state atomic.Int32

	mu      sync.Mutex
	sockets map[string]*Socket
	order   []*Socket

	handlersMu sync.RWMutex
	handlers   map[string][]func(data any)

	// Confined to the event loop.
	gen           uint64
	tr            transport.Transport
	w             *writer
	decoder       parser.Decoder
	attempts      int
	reconnecting  bool
	skipReconnect bool
	stopReconnect func()
	stopOpenTimer func()
	connectSpan   trace.Span
	rng           *rand.Rand
	backoff       Backoff
}

// NewManager creates a Manager for uri. No connection is made until a
// socket is requested (with AutoConnect) or Connect is called.
func NewManager(uri string, opts ...Option) (*Manager, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("socket: invalid uri: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("socket: unsupported scheme %q", u.Scheme)
	}
	if o.Transport == nil {
		o.Transport = transport.WebSocket()
	}
	auth, err := o.authValue()
	if err != nil {
		return nil, fmt.Errorf("socket: invalid auth: %w", err)
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	seed := o.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	id := generateID()
	log := o.Logger.With().Str("component", "manager").Str("manager", id).Logger()
	loop := &eventLoop{log: log}

	m := &Manager{
		id:       id,
		uri:      uri,
		opts:     o,
		auth:     auth,
		log:      log,
		metrics:  o.Metrics,
		tracer:   newTracer(o.TracerProvider),
		loop:     loop,
		sched:    loopScheduler{loop: loop, clock: o.clock},
		sockets:  make(map[string]*Socket),
		handlers: make(map[string][]func(data any)),
		rng:      rand.New(rand.NewSource(seed)),
		backoff:  o.backoff(),
	}
	m.state.Store(int32(StateDisconnected))

	return m, nil
}

func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) URI() string {
	return m.uri
}

func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.log.Debug().Stringer("from", old).Stringer("to", s).Msg("state change")
	}
}

// Connect opens the transport. It returns immediately; progress is
// reported through the "open" and "error" events. Calling Connect while a
// connection is open or being established has no effect.
func (m *Manager) Connect() {
	m.loop.post(m.open)
}

// Disconnect closes the transport and stops reconnecting. Every socket is
// disconnected with reason "forced close" and pending acknowledgements fail
// with ErrClosed.
func (m *Manager) Disconnect() {
	m.loop.post(m.disconnect)
}

// Close is Disconnect, but it blocks until packets already written have
// been flushed and the transport is closed, or ctx is done. It must not be
// called from a listener.
func (m *Manager) Close(ctx context.Context) error {
	flushed := make(chan (<-chan struct{}), 1)
	m.loop.post(func() {
		var done <-chan struct{}
		if m.w != nil {
			done = m.w.done
		}
		m.disconnect()
		flushed <- done
	})

	var done <-chan struct{}
	select {
	case done = <-flushed:
	case <-ctx.Done():
		return ctx.Err()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Socket returns the socket for nsp, creating it on first use.
func (m *Manager) Socket(nsp string) *Socket {
	nsp = normalizeNamespace(nsp)

	m.mu.Lock()
	s, ok := m.sockets[nsp]
	if !ok {
		s = newSocket(m, nsp)
		m.sockets[nsp] = s
		m.order = append(m.order, s)
	}
	m.mu.Unlock()

	if !ok && m.opts.AutoConnect {
		m.loop.post(s.connect)
	}
	return s
}

// On registers handler for a manager event. Handlers run on the event loop.
func (m *Manager) On(event string, handler func(data any)) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	m.handlers[event] = append(m.handlers[event], handler)
}

func (m *Manager) Off(event string) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	delete(m.handlers, event)
}

func (m *Manager) emit(event string, data any) {
	m.handlersMu.RLock()
	handlers := m.handlers[event]
	m.handlersMu.RUnlock()

	for _, handler := range handlers {
		m.safeCall(event, func() { handler(data) })
	}
}

func (m *Manager) safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("event", event).Interface("panic", r).Msg("handler panicked")
		}
	}()
	fn()
}

func (m *Manager) hasSocket(nsp string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sockets[nsp]
	return ok
}

func (m *Manager) snapshot() []*Socket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Socket(nil), m.order...)
}

// attach re-registers a socket removed by Socket.Disconnect.
func (m *Manager) attach(s *Socket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sockets[s.nsp]; ok {
		return
	}
	m.sockets[s.nsp] = s
	m.order = append(m.order, s)
}

// detach removes s and reports whether no sockets remain.
func (m *Manager) detach(s *Socket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sockets[s.nsp] == s {
		delete(m.sockets, s.nsp)
		for i, o := range m.order {
			if o == s {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return len(m.sockets) == 0
}

func (m *Manager) open() {
	switch m.State() {
	case StateConnecting, StateConnected, StateReconnecting:
		return
	}
	m.skipReconnect = false
	m.reconnecting = false
	m.attempts = 0
	m.setState(StateConnecting)
	m.dial()
}

func (m *Manager) dial() {
	m.gen++
	gen := m.gen
	tr := m.opts.Transport()
	m.tr = tr
	m.decoder.Reset()
	m.connectSpan = m.startConnectSpan(m.attempts, tr.Name())

	m.log.Debug().Str("transport", tr.Name()).Int("attempt", m.attempts).Msg("opening transport")

	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if m.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		m.stopOpenTimer = m.sched.AfterFunc(m.opts.Timeout, func() {
			m.onFailure(gen, &TransportError{Op: "open", Transport: tr.Name(), Err: ErrConnectTimeout})
		})
	}

	sink := &transportSink{m: m, gen: gen, name: tr.Name()}
	go func() {
		defer cancel()
		if err := tr.Open(ctx, m.uri, sink); err != nil {
			m.loop.post(func() {
				m.onFailure(gen, &TransportError{Op: "open", Transport: tr.Name(), Err: err})
			})
		}
	}()
}

func (m *Manager) onOpen(gen uint64) {
	if gen != m.gen || m.State() != StateConnecting {
		return
	}
	stop(&m.stopOpenTimer)
	endSpan(m.connectSpan, nil)
	m.connectSpan = nil

	name := m.tr.Name()
	m.w = newWriter(m.tr, func(err error) {
		m.loop.post(func() {
			m.onFailure(gen, &TransportError{Op: "send", Transport: name, Err: err})
		})
	})
	m.setState(StateConnected)

	attempts, wasReconnecting := m.attempts, m.reconnecting
	m.attempts = 0
	m.reconnecting = false

	m.log.Info().Str("transport", name).Msg("connected")
	m.emit(EventOpen, nil)
	if wasReconnecting {
		m.emit(EventReconnect, attempts)
	}
	for _, s := range m.snapshot() {
		s.onOpen()
	}
}

func (m *Manager) onFrame(gen uint64, f transport.Frame) {
	if gen != m.gen || m.State() != StateConnected {
		return
	}
	p, ok, err := m.decoder.Add(f.Data, f.Binary)
	if err != nil {
		m.metrics.decodeError()
		m.log.Warn().Err(err).Msg("dropping undecodable frame")
		m.emit(EventError, err)
	}
	if !ok {
		return
	}
	m.metrics.packetReceived(p.Type)
	m.log.Trace().Stringer("packet", p).Msg("received")

	m.mu.Lock()
	s := m.sockets[p.Namespace]
	m.mu.Unlock()
	if s == nil {
		m.log.Debug().Str("nsp", p.Namespace).Msg("packet for unknown namespace")
		return
	}
	s.onPacket(p)
}

func (m *Manager) onFailure(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	state := m.State()
	if state != StateConnecting && state != StateConnected {
		return
	}
	m.log.Debug().Err(err).Stringer("state", state).Msg("transport failure")
	m.release(false)

	m.emit(EventError, err)
	if state == StateConnecting {
		endSpan(m.connectSpan, err)
		m.connectSpan = nil
		if m.reconnecting {
			m.emit(EventReconnectError, err)
		}
		for _, s := range m.snapshot() {
			s.onConnectFailure(err)
		}
	} else {
		m.closed(closeReason(err))
	}
	m.maybeReconnect()
}

func (m *Manager) onTransportClose(gen uint64, reason string) {
	if gen != m.gen {
		return
	}
	switch m.State() {
	case StateConnecting:
		m.onFailure(gen, &TransportError{Op: "open", Transport: m.tr.Name(), Err: transport.ErrUnexpectedEOF})
	case StateConnected:
		m.release(false)
		m.closed(reason)
		m.maybeReconnect()
	}
}

func (m *Manager) closed(reason string) {
	m.log.Info().Str("reason", reason).Msg("disconnected")
	m.emit(EventClose, reason)
	for _, s := range m.snapshot() {
		s.onClose(reason)
	}
}

func (m *Manager) maybeReconnect() {
	if !m.opts.Reconnection || m.skipReconnect {
		m.reconnecting = false
		m.setState(StateClosed)
		return
	}
	if m.opts.ReconnectionAttempts > 0 && m.attempts >= m.opts.ReconnectionAttempts {
		attempts, failed := m.attempts, m.reconnecting
		m.attempts = 0
		m.reconnecting = false
		m.setState(StateClosed)
		if failed {
			m.log.Warn().Int("attempts", attempts).Msg("reconnection failed")
			m.metrics.reconnectFailed()
			m.emit(EventReconnectFailed, &ReconnectExhaustedError{Attempts: attempts})
		}
		return
	}

	delay := m.backoff.Duration(m.attempts, m.rng)
	m.reconnecting = true
	m.setState(StateReconnecting)
	m.log.Debug().Dur("delay", delay).Int("attempt", m.attempts+1).Msg("scheduling reconnect")
	m.stopReconnect = m.sched.AfterFunc(delay, m.reconnect)
}

func (m *Manager) reconnect() {
	m.stopReconnect = nil
	if m.State() != StateReconnecting || m.skipReconnect {
		return
	}
	m.attempts++
	m.metrics.reconnectAttempt()
	m.emit(EventReconnectAttempt, m.attempts)

	m.setState(StateConnecting)
	m.dial()
}

func (m *Manager) disconnect() {
	state := m.State()
	m.skipReconnect = true
	m.reconnecting = false
	m.attempts = 0
	stop(&m.stopReconnect)
	m.setState(StateClosed)

	if state == StateConnecting {
		endSpan(m.connectSpan, ErrClosed)
		m.connectSpan = nil
	}
	m.release(true)

	if state == StateConnected {
		m.emit(EventClose, "forced close")
	}
	for _, s := range m.snapshot() {
		s.shutdown("forced close")
	}
}

// release drops the current transport. Events it delivers afterwards are
// ignored. With flush set, queued writes go out before it closes.
func (m *Manager) release(flush bool) {
	m.gen++
	stop(&m.stopOpenTimer)
	m.decoder.Reset()

	switch {
	case m.w != nil && flush:
		m.w.close()
	case m.w != nil:
		m.w.abort()
	case m.tr != nil:
		tr := m.tr
		go tr.Close()
	}
	m.w = nil
	m.tr = nil
}

// writePacket encodes p and hands it to the writer.
func (m *Manager) writePacket(p parser.Packet) {
	if m.w == nil {
		m.log.Debug().Stringer("packet", p).Msg("no transport, dropping packet")
		return
	}
	frames, err := parser.Encode(p)
	if err != nil {
		m.log.Error().Err(err).Msg("encode failed")
		return
	}
	out := make([]transport.Frame, len(frames))
	out[0] = transport.Text(frames[0])
	for i := 1; i < len(frames); i++ {
		out[i] = transport.Binary(frames[i])
	}
	m.w.enqueue(out)
	m.metrics.packetSent(p.Type)
	m.log.Trace().Stringer("packet", p).Msg("sent")
}

func stop(cancel *func()) {
	if *cancel != nil {
		(*cancel)()
		*cancel = nil
	}
}

func closeReason(err error) string {
	if errors.Is(err, transport.ErrPingTimeout) {
		return "ping timeout"
	}
	return "transport error"
}

// transportSink forwards events of one transport generation to the loop.
type transportSink struct {
	m    *Manager
	gen  uint64
	name string
}

func (s *transportSink) OnOpen() {
	s.m.loop.post(func() { s.m.onOpen(s.gen) })
}

func (s *transportSink) OnMessage(f transport.Frame) {
	s.m.loop.post(func() { s.m.onFrame(s.gen, f) })
}

func (s *transportSink) OnError(err error) {
	s.m.loop.post(func() {
		s.m.onFailure(s.gen, &TransportError{Op: "receive", Transport: s.name, Err: err})
	})
}

func (s *transportSink) OnClose(reason string) {
	s.m.loop.post(func() { s.m.onTransportClose(s.gen, reason) })
}
