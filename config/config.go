// Package config loads and validates the sensorstream runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	HTTP    HTTPConfig    `yaml:"http"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the sensor stream listener.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	IdleTimeout  string `yaml:"idle_timeout"`
	PollInterval string `yaml:"poll_interval"`
	HistorySize  int    `yaml:"history_size"`
}

// HTTPConfig configures the metrics and data endpoint.
type HTTPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	SnapshotTTL   string `yaml:"snapshot_ttl"`
}

// CacheConfig selects where /data snapshots are cached.
type CacheConfig struct {
	Backend      string `yaml:"backend"`
	RedisAddress string `yaml:"redis_address"`
	RedisDB      int    `yaml:"redis_db"`
	KeyPrefix    string `yaml:"key_prefix"`
}

// LoggingConfig configures log level and output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8888,
			IdleTimeout:  "10s",
			PollInterval: "1s",
			HistorySize:  64,
		},
		HTTP: HTTPConfig{
			Enabled:       true,
			ListenAddress: "127.0.0.1:9470",
			SnapshotTTL:   "1s",
		},
		Cache: CacheConfig{
			Backend:      "memory",
			RedisAddress: "127.0.0.1:6379",
			KeyPrefix:    "sensorstream:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFile reads a YAML file and overlays it on Default. An empty path
// returns the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate reports every inconsistency in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if err := positiveDuration(c.Server.IdleTimeout); err != nil {
		errs = append(errs, fmt.Errorf("server.idle_timeout: %w", err))
	}
	if err := positiveDuration(c.Server.PollInterval); err != nil {
		errs = append(errs, fmt.Errorf("server.poll_interval: %w", err))
	}
	if c.Server.HistorySize <= 0 {
		errs = append(errs, errors.New("server.history_size must be > 0"))
	}

	if c.HTTP.Enabled {
		if strings.TrimSpace(c.HTTP.ListenAddress) == "" {
			errs = append(errs, errors.New("http.listen_address must not be empty"))
		}
		if err := positiveDuration(c.HTTP.SnapshotTTL); err != nil {
			errs = append(errs, fmt.Errorf("http.snapshot_ttl: %w", err))
		}
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisAddress) == "" {
			errs = append(errs, errors.New("cache.redis_address must not be empty for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q is invalid (supported: memory, redis)", c.Cache.Backend))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is invalid", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is invalid (supported: console, json)", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// IdleTimeoutDuration parses server.idle_timeout.
func (s ServerConfig) IdleTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(s.IdleTimeout)
}

// PollIntervalDuration parses server.poll_interval.
func (s ServerConfig) PollIntervalDuration() (time.Duration, error) {
	return time.ParseDuration(s.PollInterval)
}

// SnapshotTTLDuration parses http.snapshot_ttl.
func (h HTTPConfig) SnapshotTTLDuration() (time.Duration, error) {
	return time.ParseDuration(h.SnapshotTTL)
}

// ExampleYAML returns a documented example configuration.
func ExampleYAML() string {
	return `server:
  host: ""               # empty binds all interfaces
  port: 8888
  idle_timeout: "10s"    # close a silent sensor connection after this long
  poll_interval: "1s"    # how often a free connection slot is checked
  history_size: 64       # finished sessions kept for /sessions

http:
  enabled: true
  listen_address: "127.0.0.1:9470"
  snapshot_ttl: "1s"     # reuse a copy of the buffer for /data this long

cache:
  backend: "memory"      # memory | redis
  redis_address: "127.0.0.1:6379"
  redis_db: 0
  key_prefix: "sensorstream:"

logging:
  level: "info"          # debug | info | warn | error
  format: "console"      # console | json
  dir: ""                # also write rotated files here when set
`
}

func positiveDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("%q must be positive", value)
	}

	return nil
}
