package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds every setting the server reads at startup
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:""`

	Host string `env:"HTTP_HOST" envDefault:"localhost"`
	Port int    `env:"HTTP_PORT" envDefault:"8080"`

	// Browser origins allowed to call the API and open the socket
	CORSAllow []string `env:"CORS_ALLOW" envSeparator:"," envDefault:"http://localhost:5173"`

	// Empty disables cross-instance fan-out
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"watchparty:player-state"`

	ReplayLastState bool `env:"REPLAY_LAST_STATE" envDefault:"false"`

	PongWait       time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WriteWait      time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`
	SendBuffer     int           `env:"WS_SEND_BUFFER" envDefault:"256"`

	NgrokEnabled bool   `env:"NGROK_ENABLED"`
	NgrokAuth    string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain  string `env:"NGROK_DOMAIN"`
}

// Load parses the environment into a Config and validates it
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.PongWait <= 0 || c.WriteWait <= 0 {
		return fmt.Errorf("%w: websocket timeouts must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("%w: send buffer must be positive", ErrInvalidConfig)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger returns a slog.Logger with formatting + level based on env.
// prod logs JSON at INFO, others log text at DEBUG. A non-empty level
// overrides the default.
func NewLogger(appEnv, level string) *slog.Logger {
	return newLogger(os.Stdout, appEnv, level)
}

// NewLoggerTo is NewLogger writing to w. Stdio MCP mode logs to stderr since
// stdout carries the protocol.
func NewLoggerTo(w io.Writer, appEnv, level string) *slog.Logger {
	return newLogger(w, appEnv, level)
}

func newLogger(w io.Writer, appEnv, level string) *slog.Logger {
	lvl := slog.LevelDebug
	if appEnv == "prod" {
		lvl = slog.LevelInfo
	}
	if level != "" {
		lvl = parseLevel(level, lvl)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if appEnv == "prod" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string, def slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return def
	}
	return lvl
}

// Discard returns a logger that drops everything. Used when a component is
// built without one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
