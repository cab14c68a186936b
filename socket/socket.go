package socket

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketio-client/socket/ack"
	"github.com/kleeedolinux/socketio-client/socket/parser"
)

// Socket events, registered with Socket.On.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
	EventMessage      = "message"
)

var (
	ErrNoAck        = errors.New("socket: event does not expect an acknowledgement")
	ErrAlreadyAcked = errors.New("socket: event already acknowledged")
)

// AckFunc receives the acknowledgement of an emitted event, or an error
// such as *AckTimeoutError or ErrClosed.
type AckFunc = ack.Callback

// Listener handles one event. It runs on the manager's event loop.
type Listener func(e *Event)

// Event is delivered to listeners. For "disconnect" Reason is set; for
// "connect_error" Err is set.
type Event struct {
	Name   string
	Args   []parser.Value
	Reason string
	Err    error
	Socket *Socket

	ack   func([]parser.Value)
	acked atomic.Bool
}

// WantsAck reports whether the sender is waiting for an acknowledgement.
func (e *Event) WantsAck() bool {
	return e.ack != nil
}

// Ack replies to the event. Only the first call sends anything.
func (e *Event) Ack(args ...any) error {
	if e.ack == nil {
		return ErrNoAck
	}
	values, err := parser.ValuesOf(args...)
	if err != nil {
		return err
	}
	if !e.acked.CompareAndSwap(false, true) {
		return ErrAlreadyAcked
	}
	reply := e.ack
	e.Socket.manager.loop.post(func() { reply(values) })
	return nil
}

// Socket is one namespace multiplexed over a Manager's transport.
type Socket struct {
	nsp     string
	manager *Manager
	log     zerolog.Logger

	mu           sync.RWMutex
	listeners    map[string][]Listener
	anyListeners []Listener
	id           string

	connected atomic.Bool
	recovered atomic.Bool

	// Confined to the event loop.
	active     bool
	pending    bool
	queue      []parser.Packet
	received   []parser.Packet
	acks       *ack.Registry
	pid        string
	lastOffset string
}

func newSocket(m *Manager, nsp string) *Socket {
	s := &Socket{
		nsp:       nsp,
		manager:   m,
		log:       m.log.With().Str("component", "socket").Str("nsp", nsp).Logger(),
		listeners: make(map[string][]Listener),
	}
	s.acks = ack.NewRegistry(m.sched)
	return s
}

func (s *Socket) Namespace() string {
	return s.nsp
}

func (s *Socket) Manager() *Manager {
	return s.manager
}

// ID is the session id assigned by the server, empty while disconnected.
func (s *Socket) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Socket) setID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *Socket) Connected() bool {
	return s.connected.Load()
}

// Recovered reports whether the last connection restored the previous
// session, including the events missed while disconnected.
func (s *Socket) Recovered() bool {
	return s.recovered.Load()
}

func (s *Socket) On(event string, l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners[event] = append(s.listeners[event], l)
}

// Off removes every listener for event.
func (s *Socket) Off(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listeners, event)
}

// OnAny registers l for every event sent by the server. Lifecycle events
// such as "connect" are not included.
func (s *Socket) OnAny(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anyListeners = append(s.anyListeners, l)
}

func (s *Socket) OffAny() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.anyListeners = nil
}

func (s *Socket) fire(e *Event) {
	s.dispatch(e, false)
}

func (s *Socket) dispatch(e *Event, inbound bool) {
	s.mu.RLock()
	listeners := s.listeners[e.Name]
	if inbound && len(s.anyListeners) > 0 {
		listeners = append(append([]Listener(nil), s.anyListeners...), listeners...)
	}
	s.mu.RUnlock()

	e.Socket = s
	for _, l := range listeners {
		s.manager.safeCall(e.Name, func() { l(e) })
	}
}

// Emit sends event with args. Packets emitted while the namespace is not
// connected are queued and sent, in order, once it connects.
func (s *Socket) Emit(event string, args ...any) error {
	return s.emit(event, args, nil, 0)
}

// EmitWithAck is Emit with a callback for the server's acknowledgement. The
// manager's AckTimeout, if any, applies.
func (s *Socket) EmitWithAck(event string, cb AckFunc, args ...any) error {
	return s.emit(event, args, cb, 0)
}

// EmitWithAckTimeout is EmitWithAck with an explicit deadline. cb receives
// an *AckTimeoutError if no acknowledgement arrives in time.
func (s *Socket) EmitWithAckTimeout(event string, timeout time.Duration, cb AckFunc, args ...any) error {
	if timeout <= 0 {
		return fmt.Errorf("socket: invalid ack timeout %v", timeout)
	}
	return s.emit(event, args, cb, timeout)
}

// Send emits a "message" event.
func (s *Socket) Send(args ...any) error {
	return s.Emit(EventMessage, args...)
}

func (s *Socket) emit(event string, args []any, cb AckFunc, timeout time.Duration) error {
	if event == "" {
		return ErrEmptyEvent
	}
	if reservedEvents[event] {
		return fmt.Errorf("%w: %q", ErrReservedEvent, event)
	}
	values, err := parser.ValuesOf(args...)
	if err != nil {
		return err
	}
	s.manager.loop.post(func() { s.emitPacket(event, values, cb, timeout) })
	return nil
}

func (s *Socket) emitPacket(event string, values []parser.Value, cb AckFunc, timeout time.Duration) {
	p := parser.NewEvent(s.nsp, event, values)
	if cb != nil {
		id := s.acks.Next()
		p.ID, p.HasID = id, true
		if timeout == 0 {
			timeout = s.manager.opts.AckTimeout
		}
		span := s.startAckSpan(event, id)
		metrics := s.manager.metrics
		s.acks.Register(id, func(args []parser.Value, err error) {
			var timeoutErr *AckTimeoutError
			if errors.As(err, &timeoutErr) {
				metrics.ackTimeout()
			}
			endSpan(span, err)
			cb(args, err)
		}, timeout)
	}
	s.send(p)
}

func (s *Socket) send(p parser.Packet) {
	if s.connected.Load() {
		s.manager.writePacket(p)
		return
	}
	s.queue = append(s.queue, p)
}

// Connect reconnects a socket that was disconnected by Disconnect or by the
// server. It also opens the manager if needed.
func (s *Socket) Connect() {
	s.manager.loop.post(s.connect)
}

func (s *Socket) connect() {
	if s.connected.Load() {
		return
	}
	m := s.manager
	m.attach(s)
	s.active = true

	switch m.State() {
	case StateConnected:
		if !s.pending {
			s.sendConnect()
		}
	case StateDisconnected, StateClosed:
		m.open()
	}
}

// Disconnect leaves the namespace. Pending acknowledgements fail with
// ErrClosed and queued packets are dropped. The manager closes once its
// last socket is gone.
func (s *Socket) Disconnect() {
	s.manager.loop.post(s.disconnect)
}

func (s *Socket) disconnect() {
	m := s.manager
	if s.connected.Load() {
		m.writePacket(parser.Packet{Type: parser.Disconnect, Namespace: s.nsp})
	}
	s.active = false
	s.queue = nil
	s.received = nil
	s.shutdown("io client disconnect")

	if m.detach(s) {
		m.disconnect()
	}
}

// shutdown disconnects locally and fails pending acknowledgements.
func (s *Socket) shutdown(reason string) {
	s.onClose(reason)
	if n := s.acks.Fail(ErrClosed); n > 0 {
		s.log.Debug().Int("acks", n).Msg("failed pending acks")
	}
}

func (s *Socket) sendConnect() {
	fields := make(map[string]parser.Value)
	if auth, ok := s.manager.auth.AsObject(); ok {
		for k, v := range auth {
			fields[k] = v
		}
	}
	if s.pid != "" {
		fields["pid"] = parser.String(s.pid)
		if s.lastOffset != "" {
			fields["offset"] = parser.String(s.lastOffset)
		}
	}

	p := parser.Packet{Type: parser.Connect, Namespace: s.nsp}
	if len(fields) > 0 {
		p.Data = []parser.Value{parser.Object(fields)}
	}
	s.pending = true
	s.manager.writePacket(p)
}

// onOpen runs when the manager's transport opens.
func (s *Socket) onOpen() {
	s.pending = false
	if s.active {
		s.sendConnect()
	}
}

// onClose runs when the transport is lost or the namespace left.
func (s *Socket) onClose(reason string) {
	s.pending = false
	if !s.connected.Swap(false) {
		return
	}
	s.setID("")
	s.manager.metrics.socketDisconnected()
	s.log.Debug().Str("reason", reason).Msg("disconnected")
	s.fire(&Event{Name: EventDisconnect, Reason: reason, Args: []parser.Value{parser.String(reason)}})
}

// onConnectFailure runs when the transport could not be opened.
func (s *Socket) onConnectFailure(err error) {
	if s.active && !s.connected.Load() {
		s.fire(&Event{Name: EventConnectError, Err: err})
	}
}

func (s *Socket) onPacket(p parser.Packet) {
	switch p.Type {
	case parser.Connect:
		s.onConnect(p)
	case parser.Event, parser.BinaryEvent:
		if s.connected.Load() {
			s.onEvent(p)
		} else {
			s.received = append(s.received, p)
		}
	case parser.Ack, parser.BinaryAck:
		if !s.acks.Resolve(p.ID, p.Data) {
			s.log.Debug().Uint32("id", p.ID).Msg("ignoring unknown ack")
		}
	case parser.Disconnect:
		s.active = false
		s.onClose("io server disconnect")
	case parser.Error:
		s.onConnectError(p)
	}
}

func (s *Socket) onConnect(p parser.Packet) {
	s.pending = false
	if !s.active {
		return
	}
	var reply parser.Value
	if len(p.Data) > 0 {
		reply = p.Data[0]
	}
	sid, ok := reply.Get("sid").AsString()
	if !ok || sid == "" {
		s.fire(&Event{Name: EventConnectError, Err: &ConnectError{
			Namespace: s.nsp,
			Message:   "invalid CONNECT reply",
			Data:      reply,
		}})
		return
	}
	if s.connected.Load() {
		s.log.Debug().Msg("duplicate CONNECT reply")
		return
	}

	pid, _ := reply.Get("pid").AsString()
	s.recovered.Store(pid != "" && pid == s.pid)
	s.pid = pid
	s.setID(sid)
	s.connected.Store(true)
	s.manager.metrics.socketConnected()
	s.log.Debug().Str("sid", sid).Bool("recovered", s.Recovered()).Msg("connected")

	received := s.received
	s.received = nil
	for _, rp := range received {
		s.onEvent(rp)
	}
	queue := s.queue
	s.queue = nil
	for _, qp := range queue {
		s.manager.writePacket(qp)
	}

	s.fire(&Event{Name: EventConnect})
}

func (s *Socket) onConnectError(p parser.Packet) {
	s.pending = false
	s.active = false

	ce := &ConnectError{Namespace: s.nsp}
	if len(p.Data) > 0 {
		v := p.Data[0]
		if msg, ok := v.AsString(); ok {
			ce.Message = msg
		} else {
			ce.Message, _ = v.Get("message").AsString()
			ce.Data = v.Get("data")
		}
	}
	s.log.Debug().Str("message", ce.Message).Msg("connect refused")
	s.fire(&Event{Name: EventConnectError, Err: ce})
}

func (s *Socket) onEvent(p parser.Packet) {
	name, _ := p.EventName()
	args := p.Args()
	if s.pid != "" && len(args) > 0 {
		if offset, ok := args[len(args)-1].AsString(); ok {
			s.lastOffset = offset
		}
	}

	e := &Event{Name: name, Args: args}
	if p.HasID {
		id := p.ID
		e.ack = func(values []parser.Value) {
			s.send(parser.NewAck(s.nsp, id, values))
		}
	}
	s.dispatch(e, true)
}

func normalizeNamespace(nsp string) string {
	if nsp == "" {
		return parser.DefaultNamespace
	}
	if !strings.HasPrefix(nsp, "/") {
		return "/" + nsp
	}
	return nsp
}
