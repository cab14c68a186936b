// Package debug owns the process-wide logger used by the client and its
// transports. It is configured from the environment at start-up:
//
//	SOCKET_GO_DEBUG=true        force debug level
//	SOCKET_GO_LOG_LEVEL=info    trace|debug|info|warn|error|disabled
//	SOCKET_GO_LOG_FORMAT=json   console|json
package debug

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvDebug     = "SOCKET_GO_DEBUG"
	EnvLogLevel  = "SOCKET_GO_LOG_LEVEL"
	EnvLogFormat = "SOCKET_GO_LOG_FORMAT"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Level     zerolog.Level
	Format    string
	Output    io.Writer
	Timestamp bool
	NoColor   bool
}

var (
	mu      sync.RWMutex
	current Config
	logger  zerolog.Logger
	Debug   bool
)

func init() {
	cfg := DefaultConfig()
	applyEnv(&cfg)
	Configure(cfg)
}

func DefaultConfig() Config {
	return Config{
		Level:     zerolog.WarnLevel,
		Format:    FormatConsole,
		Output:    os.Stderr,
		Timestamp: true,
	}
}

// Configure replaces the process-wide logger.
func Configure(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	out := cfg.Output
	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: cfg.Output, NoColor: cfg.NoColor, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}

	mu.Lock()
	current = cfg
	logger = ctx.Logger().Level(effectiveLevel(cfg.Level))
	mu.Unlock()
}

// Current returns the settings last passed to Configure, environment
// overrides included.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Logger returns a copy of the process-wide logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Enable() {
	mu.Lock()
	Debug = true
	logger = logger.Level(effectiveLevel(current.Level))
	mu.Unlock()
}

func Disable() {
	mu.Lock()
	Debug = false
	logger = logger.Level(effectiveLevel(current.Level))
	mu.Unlock()
}

func effectiveLevel(l zerolog.Level) zerolog.Level {
	if Debug && l > zerolog.DebugLevel {
		return zerolog.DebugLevel
	}
	return l
}

func applyEnv(cfg *Config) {
	if v, ok := parseBool(os.Getenv(EnvDebug)); ok {
		Debug = v
	}
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case FormatJSON:
		cfg.Format = FormatJSON
	case FormatConsole:
		cfg.Format = FormatConsole
	}
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	}
	return zerolog.NoLevel, false
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
