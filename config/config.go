// Package config holds the application configuration: hardware server
// connection, signal-bus wiring, presence defaults, and the metrics
// endpoint. Files may be YAML or JSON (decided by extension) and every
// field can be overridden from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/hapticbridge/errors"
	"github.com/c360/hapticbridge/presence"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// HAPTICBRIDGE_SERVER_URL.
const EnvPrefix = "HAPTICBRIDGE"

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Signal   SignalConfig   `json:"signal" yaml:"signal"`
	Presence PresenceConfig `json:"presence" yaml:"presence"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ServerConfig describes the hardware-control server connection.
type ServerConfig struct {
	URL                 string        `json:"url" yaml:"url"`
	ClientName          string        `json:"client_name" yaml:"client_name"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	ReadinessInterval   time.Duration `json:"readiness_interval" yaml:"readiness_interval"`
	ReadinessIterations int           `json:"readiness_iterations" yaml:"readiness_iterations"`
	// CommandsPerSecond caps outgoing actuation commands; zero disables
	// the limiter.
	CommandsPerSecond float64 `json:"commands_per_second" yaml:"commands_per_second"`
}

// SignalConfig describes the NATS work-signal bus.
type SignalConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	NATSURL       string        `json:"nats_url" yaml:"nats_url"`
	SubjectPrefix string        `json:"subject_prefix" yaml:"subject_prefix"`
	Heartbeat     time.Duration `json:"heartbeat" yaml:"heartbeat"`
}

// PresenceConfig holds presence-controller defaults.
type PresenceConfig struct {
	DefaultStrength float64 `json:"default_strength" yaml:"default_strength"`
	DefaultDevice   uint32  `json:"default_device" yaml:"default_device"`
}

// MetricsConfig describes the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or text
}

// DefaultConfig returns a configuration with working defaults for a
// local setup.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:                 "ws://127.0.0.1:12345",
			ClientName:          "hapticbridge",
			ConnectTimeout:      10 * time.Second,
			ReadinessInterval:   500 * time.Millisecond,
			ReadinessIterations: 10,
		},
		Signal: SignalConfig{
			Enabled:       true,
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "hapticbridge",
			Heartbeat:     30 * time.Second,
		},
		Presence: PresenceConfig{
			DefaultStrength: presence.DefaultStrength,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a config file, layers it over the defaults, applies
// environment overrides, and validates the result. An empty path skips
// the file step.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "Config", "Load", "read config file")
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		case ".json":
			err = json.Unmarshal(data, cfg)
		default:
			return nil, errors.WrapInvalid(
				fmt.Errorf("unsupported extension %q", filepath.Ext(path)),
				"Config", "Load", "detect format")
		}
		if err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values that would fail at
// runtime.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "server.url")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse server.url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.WrapInvalid(
			fmt.Errorf("server.url scheme must be ws or wss, got %q", u.Scheme),
			"Config", "Validate", "server.url scheme")
	}
	if c.Server.ConnectTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("server.connect_timeout must be positive"),
			"Config", "Validate", "server.connect_timeout")
	}
	if c.Server.CommandsPerSecond < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("server.commands_per_second must not be negative"),
			"Config", "Validate", "server.commands_per_second")
	}
	if c.Signal.Enabled {
		if c.Signal.NATSURL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "signal.nats_url")
		}
		if c.Signal.SubjectPrefix == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "signal.subject_prefix")
		}
	}
	if c.Presence.DefaultStrength < 0 || c.Presence.DefaultStrength > 1 {
		return errors.WrapInvalid(
			fmt.Errorf("presence.default_strength %v outside [0,1]", c.Presence.DefaultStrength),
			"Config", "Validate", "presence.default_strength")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "metrics.addr")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("logging.level %q not one of debug/info/warn/error", c.Logging.Level),
			"Config", "Validate", "logging.level")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("logging.format %q not one of json/text", c.Logging.Format),
			"Config", "Validate", "logging.format")
	}
	return nil
}

// applyEnvOverrides layers HAPTICBRIDGE_* environment variables over
// the loaded configuration. Unparseable values are ignored so a typo in
// the environment cannot silently zero a field.
func (c *Config) applyEnvOverrides() {
	setString(&c.Server.URL, "SERVER_URL")
	setString(&c.Server.ClientName, "SERVER_CLIENT_NAME")
	setDuration(&c.Server.ConnectTimeout, "SERVER_CONNECT_TIMEOUT")
	setDuration(&c.Server.ReadinessInterval, "SERVER_READINESS_INTERVAL")
	setInt(&c.Server.ReadinessIterations, "SERVER_READINESS_ITERATIONS")
	setFloat(&c.Server.CommandsPerSecond, "SERVER_COMMANDS_PER_SECOND")

	setBool(&c.Signal.Enabled, "SIGNAL_ENABLED")
	setString(&c.Signal.NATSURL, "SIGNAL_NATS_URL")
	setString(&c.Signal.SubjectPrefix, "SIGNAL_SUBJECT_PREFIX")
	setDuration(&c.Signal.Heartbeat, "SIGNAL_HEARTBEAT")

	setFloat(&c.Presence.DefaultStrength, "PRESENCE_DEFAULT_STRENGTH")
	setUint32(&c.Presence.DefaultDevice, "PRESENCE_DEFAULT_DEVICE")

	setBool(&c.Metrics.Enabled, "METRICS_ENABLED")
	setString(&c.Metrics.Addr, "METRICS_ADDR")
	setString(&c.Metrics.Path, "METRICS_PATH")

	setString(&c.Logging.Level, "LOGGING_LEVEL")
	setString(&c.Logging.Format, "LOGGING_FORMAT")
}

func envValue(key string) (string, bool) {
	val := os.Getenv(EnvPrefix + "_" + key)
	return val, val != ""
}

func setString(dst *string, key string) {
	if val, ok := envValue(key); ok {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) {
	if val, ok := envValue(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if val, ok := envValue(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setUint32(dst *uint32, key string) {
	if val, ok := envValue(key); ok {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func setFloat(dst *float64, key string) {
	if val, ok := envValue(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if val, ok := envValue(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
