package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kleeedolinux/socketio-client/debug"
	"github.com/kleeedolinux/socketio-client/socket"
	"github.com/kleeedolinux/socketio-client/socket/transport"
)

const sample = `
url = "https://chat.example.com"
namespace = "/admin"
transport = "polling"
ack_timeout = "2s"

[headers]
Authorization = "Bearer abc"

[query]
room = "lobby"

[auth]
token = "secret"

[reconnection]
enabled = true
attempts = 3
delay = "500ms"
delay_max = "10s"
randomization_factor = 0.25

[log]
level = "debug"
format = "json"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.URL != "https://chat.example.com" || cfg.Namespace != "/admin" || cfg.Transport != TransportPolling {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.AckTimeout.Duration != 2*time.Second {
		t.Errorf("Expected ack_timeout 2s, got %v", cfg.AckTimeout.Duration)
	}
	if cfg.Timeout.Duration != 20*time.Second {
		t.Errorf("Expected default timeout 20s, got %v", cfg.Timeout.Duration)
	}
	r := cfg.Reconnection
	if r.Enabled == nil || !*r.Enabled || r.Attempts != 3 {
		t.Errorf("unexpected reconnection %+v", r)
	}
	if r.Delay.Duration != 500*time.Millisecond || r.DelayMax.Duration != 10*time.Second {
		t.Errorf("unexpected delays %v %v", r.Delay, r.DelayMax)
	}
	if r.RandomizationFactor == nil || *r.RandomizationFactor != 0.25 {
		t.Errorf("unexpected randomization factor %v", r.RandomizationFactor)
	}
	if cfg.Headers["Authorization"] != "Bearer abc" || cfg.Query["room"] != "lobby" {
		t.Errorf("unexpected headers/query %v %v", cfg.Headers, cfg.Query)
	}
	if cfg.Auth["token"] != "secret" {
		t.Errorf("unexpected auth %v", cfg.Auth)
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "http://localhost:3000" || cfg.Namespace != "/" || cfg.Transport != TransportWebSocket {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Path != transport.DefaultPath {
		t.Errorf("Expected default path, got %q", cfg.Path)
	}
	if Default().URL != cfg.URL {
		t.Error("Default and Parse(nil) disagree")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		toml string
		want string
	}{
		{"scheme", `url = "ftp://x"`, "scheme"},
		{"host", `url = "http://"`, "host"},
		{"transport", `transport = "carrier-pigeon"`, "transport"},
		{"namespace", `namespace = "admin"`, "namespace"},
		{"attempts", "[reconnection]\nattempts = -1", "attempts"},
		{"delays", "[reconnection]\ndelay = \"5s\"\ndelay_max = \"1s\"", "delay_max"},
		{"jitter", "[reconnection]\nrandomization_factor = 2.0", "randomization_factor"},
		{"level", "[log]\nlevel = \"loud\"", "log level"},
		{"format", "[log]\nformat = \"xml\"", "log format"},
		{"duration", `timeout = "soon"`, "parse"},
	}
	for _, c := range cases {
		_, err := Parse([]byte(c.toml))
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: Expected error mentioning %q, got %v", c.name, c.want, err)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Namespace != "/admin" {
		t.Errorf("unexpected namespace %q", cfg.Namespace)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOptions(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	o := socket.DefaultOptions()
	for _, opt := range cfg.Options(zerolog.Nop()) {
		opt(&o)
	}
	if o.Path != "/admin" || o.ReconnectionAttempts != 3 || o.RandomizationFactor != 0.25 {
		t.Errorf("unexpected options %+v", o)
	}
	if o.AckTimeout != 2*time.Second || o.ReconnectionDelay != 500*time.Millisecond {
		t.Errorf("unexpected durations %v %v", o.AckTimeout, o.ReconnectionDelay)
	}
	if o.Auth["token"] != "secret" {
		t.Errorf("unexpected auth %v", o.Auth)
	}
	if name := o.Transport().Name(); name != "polling" {
		t.Errorf("Expected polling transport, got %s", name)
	}

	ws := Default()
	if name := ws.TransportFactory(zerolog.Nop())().Name(); name != "websocket" {
		t.Errorf("Expected websocket transport, got %s", name)
	}
}

func TestLogSettings(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	got := cfg.LogSettings(debug.DefaultConfig())
	if got.Level != zerolog.DebugLevel || got.Format != debug.FormatJSON {
		t.Errorf("unexpected log settings %+v", got)
	}

	unchanged := Default().LogSettings(debug.DefaultConfig())
	if unchanged.Level != zerolog.WarnLevel {
		t.Errorf("Expected default level to be kept, got %v", unchanged.Level)
	}
}
