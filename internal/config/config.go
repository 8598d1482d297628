// Package config loads the client configuration from layered sources:
// built-in defaults, an optional YAML file, then VIBEZ_-prefixed
// environment variables, each layer overriding the previous one.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "VIBEZ_"

// ConfigPathEnvVar names the env var pointing at an explicit config file.
const ConfigPathEnvVar = "VIBEZ_CONFIG"

var defaultConfigPaths = []string{
	"vibez.yaml",
	"config/vibez.yaml",
}

// Config is the full client configuration.
type Config struct {
	API       APIConfig       `koanf:"api"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Auth      AuthConfig      `koanf:"auth"`
	Control   ControlConfig   `koanf:"control"`
	Cache     CacheConfig     `koanf:"cache"`
	Sink      SinkConfig      `koanf:"sink"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// APIConfig addresses the backend's REST surface.
type APIConfig struct {
	BaseURL string `koanf:"base_url"`
}

// RealtimeConfig tunes the websocket transport.
type RealtimeConfig struct {
	URL              string        `koanf:"url"`
	HeartbeatSend    time.Duration `koanf:"heartbeat_send"`
	HeartbeatRecv    time.Duration `koanf:"heartbeat_recv"`
	ReconnectDelay   time.Duration `koanf:"reconnect_delay"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

// AuthConfig supplies the bearer credential. Token wins over TokenFile
// when both are set.
type AuthConfig struct {
	Username  string `koanf:"username"`
	Token     string `koanf:"token"`
	TokenFile string `koanf:"token_file"`
}

// ControlConfig addresses the local control API.
type ControlConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// CacheConfig addresses the local history database. Empty path disables
// the cache.
type CacheConfig struct {
	Path string `koanf:"path"`
}

// SinkConfig addresses the optional local event bus.
type SinkConfig struct {
	AMQPURL  string `koanf:"amqp_url"`
	Exchange string `koanf:"exchange"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// TelemetryConfig addresses the optional OTLP trace collector. Empty
// endpoint disables tracing export.
type TelemetryConfig struct {
	Endpoint    string `koanf:"endpoint"`
	ServiceName string `koanf:"service_name"`
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{BaseURL: "http://localhost:8080/api"},
		Realtime: RealtimeConfig{
			URL:              "ws://localhost:8080/ws-raw",
			HeartbeatSend:    10 * time.Second,
			HeartbeatRecv:    10 * time.Second,
			ReconnectDelay:   5 * time.Second,
			HandshakeTimeout: 10 * time.Second,
		},
		Control:   ControlConfig{ListenAddr: ":7420"},
		Cache:     CacheConfig{Path: "vibez-cache.db"},
		Sink:      SinkConfig{Exchange: "vibez.events"},
		Log:       LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{ServiceName: "vibez-client"},
	}
}

// Load builds the configuration: defaults, then the config file if one
// exists, then VIBEZ_ environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// VIBEZ_REALTIME_RECONNECT_DELAY -> realtime.reconnect_delay. Section
	// names are single words, so only the first underscore splits.
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if s == strings.ToLower(strings.TrimPrefix(ConfigPathEnvVar, envPrefix)) {
		return ""
	}
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate rejects configurations the client cannot start with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Realtime.URL == "" {
		return fmt.Errorf("realtime.url is required")
	}
	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return fmt.Errorf("one of auth.token or auth.token_file is required")
	}
	if c.Realtime.HeartbeatSend < 0 || c.Realtime.HeartbeatRecv < 0 {
		return fmt.Errorf("realtime heartbeat intervals must not be negative")
	}
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("realtime.reconnect_delay must be positive")
	}
	return nil
}
