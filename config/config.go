// Package config loads client settings from TOML files.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketio-client/debug"
	"github.com/kleeedolinux/socketio-client/socket"
	"github.com/kleeedolinux/socketio-client/socket/transport"
)

const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Duration is a time.Duration written as a string such as "1.5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Client struct {
	URL       string            `toml:"url"`
	Namespace string            `toml:"namespace"`
	Transport string            `toml:"transport"`
	Path      string            `toml:"path"`
	Headers   map[string]string `toml:"headers"`
	Query     map[string]string `toml:"query"`
	Auth      map[string]any    `toml:"auth"`

	Timeout    Duration `toml:"timeout"`
	AckTimeout Duration `toml:"ack_timeout"`
	ForceNew   bool     `toml:"force_new"`

	Reconnection ReconnectConfig `toml:"reconnection"`
	Log          LogConfig       `toml:"log"`
}

type ReconnectConfig struct {
	Enabled             *bool    `toml:"enabled"`
	Attempts            int      `toml:"attempts"`
	Delay               Duration `toml:"delay"`
	DelayMax            Duration `toml:"delay_max"`
	RandomizationFactor *float64 `toml:"randomization_factor"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Client{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Client{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (Client, error) {
	var cfg Client
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Client{}, fmt.Errorf("config parse failed: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func Default() Client {
	var cfg Client
	cfg.applyDefaults()
	return cfg
}

func (c *Client) applyDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Namespace == "" {
		c.Namespace = "/"
	}
	if c.Transport == "" {
		c.Transport = TransportWebSocket
	}
	if c.Path == "" {
		c.Path = transport.DefaultPath
	}
	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = 20 * time.Second
	}
	if c.Reconnection.Delay.Duration == 0 {
		c.Reconnection.Delay.Duration = time.Second
	}
	if c.Reconnection.DelayMax.Duration == 0 {
		c.Reconnection.DelayMax.Duration = 5 * time.Second
	}
}

func Validate(cfg Client) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url missing host")
	}
	switch cfg.Transport {
	case TransportWebSocket, TransportPolling:
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if !strings.HasPrefix(cfg.Namespace, "/") {
		return fmt.Errorf("namespace must start with /, got %q", cfg.Namespace)
	}
	if cfg.Timeout.Duration < 0 || cfg.AckTimeout.Duration < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	r := cfg.Reconnection
	if r.Attempts < 0 {
		return fmt.Errorf("reconnection.attempts must not be negative")
	}
	if r.Delay.Duration < 0 || r.DelayMax.Duration < r.Delay.Duration {
		return fmt.Errorf("reconnection.delay_max (%v) must be at least delay (%v)", r.DelayMax.Duration, r.Delay.Duration)
	}
	if f := r.RandomizationFactor; f != nil && (*f < 0 || *f > 1) {
		return fmt.Errorf("reconnection.randomization_factor must be within [0, 1], got %v", *f)
	}
	if cfg.Log.Level != "" {
		if _, ok := debug.ParseLevel(cfg.Log.Level); !ok {
			return fmt.Errorf("unknown log level %q", cfg.Log.Level)
		}
	}
	switch cfg.Log.Format {
	case "", debug.FormatConsole, debug.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return nil
}

// TransportFactory builds the configured transport with headers, query and
// path applied.
func (c Client) TransportFactory(log zerolog.Logger) transport.Factory {
	headers := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		headers.Set(k, v)
	}
	query := make(url.Values, len(c.Query))
	for k, v := range c.Query {
		query.Set(k, v)
	}

	if c.Transport == TransportPolling {
		return transport.Polling(
			transport.WithPollingHeaders(headers),
			transport.WithPollingQuery(query),
			transport.WithPollingPath(c.Path),
			transport.WithPollingLogger(log),
		)
	}
	return transport.WebSocket(
		transport.WithHeaders(headers),
		transport.WithQuery(query),
		transport.WithPath(c.Path),
		transport.WithLogger(log),
	)
}

// Options converts the file into manager options.
func (c Client) Options(log zerolog.Logger) []socket.Option {
	opts := []socket.Option{
		socket.WithTransport(c.TransportFactory(log)),
		socket.WithLogger(log),
		socket.WithPath(c.Namespace),
		socket.WithTimeout(c.Timeout.Duration),
		socket.WithForceNew(c.ForceNew),
		socket.WithReconnectionAttempts(c.Reconnection.Attempts),
		socket.WithReconnectionDelay(c.Reconnection.Delay.Duration),
		socket.WithReconnectionDelayMax(c.Reconnection.DelayMax.Duration),
	}
	if c.Reconnection.Enabled != nil {
		opts = append(opts, socket.WithReconnection(*c.Reconnection.Enabled))
	}
	if c.Reconnection.RandomizationFactor != nil {
		opts = append(opts, socket.WithRandomizationFactor(*c.Reconnection.RandomizationFactor))
	}
	if c.AckTimeout.Duration > 0 {
		opts = append(opts, socket.WithAckTimeout(c.AckTimeout.Duration))
	}
	if len(c.Auth) > 0 {
		opts = append(opts, socket.WithAuth(c.Auth))
	}
	return opts
}

// LogSettings returns the logger settings, starting from base.
func (c Client) LogSettings(base debug.Config) debug.Config {
	if lvl, ok := debug.ParseLevel(c.Log.Level); ok {
		base.Level = lvl
	}
	if c.Log.Format != "" {
		base.Format = c.Log.Format
	}
	return base
}
