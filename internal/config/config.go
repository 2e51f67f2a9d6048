// Package config provides the runtime settings for the relay server and its
// client: defaults per protocol variant, an optional YAML file, and
// WSRELAY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/wsrelay/internal/logging"
	"github.com/Tyrowin/wsrelay/internal/protocol"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultAddr       = ":8000"
	defaultPath       = "/"
	defaultServerURL  = "ws://localhost:8000/"
	defaultSendBuffer = 256
)

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds server and client settings.
type Config struct {
	// Addr is the TCP address the server listens on.
	Addr string `yaml:"addr"`
	// Path is the HTTP path that accepts WebSocket upgrades.
	Path string `yaml:"path"`
	// Variant picks the ping or join protocol.
	Variant protocol.Variant `yaml:"variant"`
	// DrainTimeout is how long the server waits after the shutdown notice
	// before aborting the listener.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	// AllowedOrigins lists browser origins accepted on upgrade. "*" allows
	// any origin; requests without an Origin header are always accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// MaxMessageSize caps inbound frames in bytes. Zero means unlimited.
	MaxMessageSize int64 `yaml:"max_message_size"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `yaml:"send_buffer"`
	// ServerURL is where the client connects.
	ServerURL string `yaml:"server_url"`

	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the settings for variant with nothing overridden.
func Default(variant protocol.Variant) *Config {
	return &Config{
		Addr:           defaultAddr,
		Path:           defaultPath,
		Variant:        variant,
		DrainTimeout:   variant.DrainTimeout(),
		AllowedOrigins: []string{"*"},
		SendBuffer:     defaultSendBuffer,
		ServerURL:      defaultServerURL,
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
	}
}

// Load builds a Config from the variant defaults, the YAML file at path (if
// path is non-empty), and the environment, in that order.
func Load(path string, variant protocol.Variant) (*Config, error) {
	cfg := Default(variant)
	// Derived from the final variant in sanitize unless the file or env sets it.
	cfg.DrainTimeout = 0

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WSRELAY_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("WSRELAY_PATH"); v != "" {
		cfg.Path = v
	}
	if v := os.Getenv("WSRELAY_VARIANT"); v != "" {
		cfg.Variant = protocol.Variant(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("WSRELAY_DRAIN_TIMEOUT"); v != "" {
		cfg.DrainTimeout = ParseDuration(v, cfg.DrainTimeout)
	}
	if v := os.Getenv("WSRELAY_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("WSRELAY_MAX_MESSAGE_SIZE"); v != "" {
		cfg.MaxMessageSize = parseInt64(v, cfg.MaxMessageSize)
	}
	if v := os.Getenv("WSRELAY_SEND_BUFFER"); v != "" {
		cfg.SendBuffer = int(parseInt64(v, int64(cfg.SendBuffer)))
	}
	if v := os.Getenv("WSRELAY_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("WSRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WSRELAY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// sanitize fills zero values left by a partial file with defaults.
func (c *Config) sanitize() {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.Path == "" {
		c.Path = defaultPath
	}
	if c.Variant == "" {
		c.Variant = protocol.VariantPing
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = c.Variant.DrainTimeout()
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}
	c.AllowedOrigins = parseList(strings.Join(c.AllowedOrigins, ","))
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := protocol.ParseVariant(string(c.Variant)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("%w: drain_timeout must not be negative", ErrInvalidConfig)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("%w: max_message_size must not be negative", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidConfig, c.Path)
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("%w: server_url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: server_url scheme must be ws or wss, got %q", ErrInvalidConfig, u.Scheme)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LogConfig converts c.Logging for logging.New. Validate has already
// rejected bad values, so parse errors fall back to defaults.
func (c *Config) LogConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	format, _ := logging.ParseFormat(c.Logging.Format)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	return cfg
}

// ParseDuration accepts a Go duration ("1500ms") or a whole number of
// seconds ("5"). Anything else returns def.
func ParseDuration(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return def
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(value string, def int64) int64 {
	if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && n >= 0 {
		return n
	}
	return def
}
