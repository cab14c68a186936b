package socket

import (
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/kleeedolinux/socketio-client/debug"
	"github.com/kleeedolinux/socketio-client/socket/parser"
	"github.com/kleeedolinux/socketio-client/socket/transport"
)

// Options configures a Manager and the sockets it creates.
type Options struct {
	// ForceNew makes Connect create a new Manager instead of reusing a
	// cached one for the same origin.
	ForceNew bool

	// Multiplex allows Connect to share a Manager between namespaces.
	Multiplex bool

	// AutoConnect opens the transport as soon as a socket is requested.
	AutoConnect bool

	Reconnection         bool
	ReconnectionAttempts int // 0 means unlimited
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	RandomizationFactor  float64

	// Timeout bounds each connection attempt. Zero disables it.
	Timeout time.Duration

	// Path is the namespace Connect opens, "/" when empty and the URL has
	// no path either.
	Path string

	// AckTimeout applies to EmitWithAck calls that don't set their own.
	AckTimeout time.Duration

	// Auth is sent in every CONNECT packet.
	Auth map[string]any

	Transport      transport.Factory
	Logger         zerolog.Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider

	clock clock
	seed  int64
}

func DefaultOptions() Options {
	return Options{
		Multiplex:            true,
		AutoConnect:          true,
		Reconnection:         true,
		ReconnectionDelay:    time.Second,
		ReconnectionDelayMax: 5 * time.Second,
		RandomizationFactor:  0.5,
		Timeout:              20 * time.Second,
		Path:                 "",
		Transport:            transport.WebSocket(),
		Logger:               debug.Logger(),
	}
}

type Option func(*Options)

func WithForceNew(forceNew bool) Option {
	return func(o *Options) {
		o.ForceNew = forceNew
	}
}

func WithMultiplex(multiplex bool) Option {
	return func(o *Options) {
		o.Multiplex = multiplex
	}
}

func WithAutoConnect(auto bool) Option {
	return func(o *Options) {
		o.AutoConnect = auto
	}
}

func WithReconnection(enabled bool) Option {
	return func(o *Options) {
		o.Reconnection = enabled
	}
}

func WithReconnectionAttempts(attempts int) Option {
	return func(o *Options) {
		o.ReconnectionAttempts = attempts
	}
}

func WithReconnectionDelay(d time.Duration) Option {
	return func(o *Options) {
		o.ReconnectionDelay = d
	}
}

func WithReconnectionDelayMax(d time.Duration) Option {
	return func(o *Options) {
		o.ReconnectionDelayMax = d
	}
}

// WithRandomizationFactor sets the backoff jitter. 0 disables it; values
// above 1 are clamped.
func WithRandomizationFactor(f float64) Option {
	return func(o *Options) {
		o.RandomizationFactor = f
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

func WithPath(nsp string) Option {
	return func(o *Options) {
		o.Path = nsp
	}
}

func WithAckTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.AckTimeout = d
	}
}

func WithAuth(auth map[string]any) Option {
	return func(o *Options) {
		o.Auth = auth
	}
}

func WithTransport(f transport.Factory) Option {
	return func(o *Options) {
		o.Transport = f
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func (o Options) backoff() Backoff {
	return Backoff{
		Min:    o.ReconnectionDelay,
		Max:    o.ReconnectionDelayMax,
		Factor: 2,
		Jitter: o.RandomizationFactor,
	}
}

func (o Options) authValue() (parser.Value, error) {
	if len(o.Auth) == 0 {
		return parser.Null(), nil
	}
	return parser.ValueOf(o.Auth)
}
