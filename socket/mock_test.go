package socket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketio-client/socket/transport"
)

type mockTransport struct {
	mu      sync.Mutex
	events  transport.Events
	uri     string
	sent    []transport.Frame
	closed  bool
	openErr error
	ready   chan struct{}
}

func (t *mockTransport) Name() string { return "mock" }

func (t *mockTransport) Open(ctx context.Context, uri string, events transport.Events) error {
	t.mu.Lock()
	t.events = events
	t.uri = uri
	err := t.openErr
	t.mu.Unlock()
	close(t.ready)
	return err
}

func (t *mockTransport) Send(frames ...transport.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	t.sent = append(t.sent, frames...)
	return nil
}

func (t *mockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *mockTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *mockTransport) open() {
	t.events.OnOpen()
}

func (t *mockTransport) receive(frames ...string) {
	for _, f := range frames {
		t.events.OnMessage(transport.Text([]byte(f)))
	}
}

func (t *mockTransport) receiveBinary(data []byte) {
	t.events.OnMessage(transport.Binary(data))
}

// frames returns everything written so far; binary frames are rendered as
// their raw bytes.
func (t *mockTransport) frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, f := range t.sent {
		out[i] = string(f.Data)
	}
	return out
}

func (t *mockTransport) waitSent(tb testing.TB, n int) []string {
	tb.Helper()
	waitFor(tb, func() bool { return len(t.frames()) >= n })
	return t.frames()
}

type mockFactory struct {
	mu      sync.Mutex
	openErr error
	created chan *mockTransport
}

func newMockFactory() *mockFactory {
	return &mockFactory{created: make(chan *mockTransport, 64)}
}

func (f *mockFactory) failWith(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

func (f *mockFactory) factory() transport.Factory {
	return func() transport.Transport {
		f.mu.Lock()
		tr := &mockTransport{openErr: f.openErr, ready: make(chan struct{})}
		f.mu.Unlock()
		f.created <- tr
		return tr
	}
}

// next waits for the next transport and for Open to have been called on it.
func (f *mockFactory) next(tb testing.TB) *mockTransport {
	tb.Helper()
	select {
	case tr := <-f.created:
		select {
		case <-tr.ready:
			return tr
		case <-time.After(2 * time.Second):
			tb.Fatal("transport was never opened")
		}
	case <-time.After(2 * time.Second):
		tb.Fatal("no transport created")
	}
	return nil
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

// fakeClock records timers; tests fire them explicitly.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	tm := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, tm)
	return func() {
		c.mu.Lock()
		tm.stopped = true
		c.mu.Unlock()
	}
}

func (c *fakeClock) active() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired {
			out = append(out, tm.d)
		}
	}
	return out
}

// fire runs the oldest active timer and returns its duration.
func (c *fakeClock) fire(tb testing.TB) time.Duration {
	tb.Helper()
	c.mu.Lock()
	var next *fakeTimer
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired {
			next = tm
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		tb.Fatal("no active timer")
		return 0
	}
	next.fired = true
	c.mu.Unlock()

	next.f()
	return next.d
}

func withClock(c clock) Option {
	return func(o *Options) {
		o.clock = c
	}
}

func withSeed(seed int64) Option {
	return func(o *Options) {
		o.seed = seed
	}
}

func newTestManager(tb testing.TB, opts ...Option) (*Manager, *mockFactory, *fakeClock) {
	tb.Helper()
	f := newMockFactory()
	c := &fakeClock{}
	base := []Option{
		WithTransport(f.factory()),
		WithLogger(zerolog.Nop()),
		WithTimeout(0),
		withClock(c),
		withSeed(1),
	}
	m, err := NewManager("http://localhost:3000", append(base, opts...)...)
	if err != nil {
		tb.Fatalf("NewManager: %v", err)
	}
	return m, f, c
}

// flush waits until everything posted to the loop so far has run.
func flush(tb testing.TB, m *Manager) {
	tb.Helper()
	onLoop(tb, m, func() {})
}

func onLoop(tb testing.TB, m *Manager, fn func()) {
	tb.Helper()
	done := make(chan struct{})
	m.loop.post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		tb.Fatal("event loop stalled")
	}
}

func waitFor(tb testing.TB, cond func() bool) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			tb.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// connect opens nsp on m and completes the handshake with sid.
func connect(tb testing.TB, m *Manager, f *mockFactory, nsp, sid string) (*Socket, *mockTransport) {
	tb.Helper()
	s := m.Socket(nsp)
	tr := f.next(tb)
	tr.open()
	tr.waitSent(tb, 1)

	prefix := ""
	if nsp != "/" {
		prefix = nsp + ","
	}
	tr.receive(`0` + prefix + `{"sid":"` + sid + `"}`)
	flush(tb, m)
	if !s.Connected() {
		tb.Fatalf("socket %s not connected", nsp)
	}
	return s, tr
}

// recorder collects manager events.
type recorder struct {
	mu     sync.Mutex
	events []string
	data   map[string][]any
}

func record(m *Manager, events ...string) *recorder {
	r := &recorder{data: make(map[string][]any)}
	for _, ev := range events {
		ev := ev
		m.On(ev, func(data any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
			r.data[ev] = append(r.data[ev], data)
		})
	}
	return r
}

func (r *recorder) get(ev string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.data[ev]...)
}

func (r *recorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
