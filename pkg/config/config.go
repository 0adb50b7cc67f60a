package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fieldgate/pkg/field"
	"fieldgate/pkg/output"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for a fieldgate instance.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Redis        RedisConfig        `yaml:"redis"`
	Log          LogConfig          `yaml:"log"`
	MQTT         *output.MQTTConfig `yaml:"mqtt,omitempty"`
	BufferSize   uint64             `yaml:"buffer_size"`
	BatchSize    int64              `yaml:"batch_size"`
	StaticFields []field.Config     `yaml:"static_fields"`
}

type ServerConfig struct {
	TCPPort  int `yaml:"tcp_port"`
	UDPPort  int `yaml:"udp_port"`
	HTTPPort int `yaml:"http_port"` // admin: /healthz, /metrics, /fields
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	ConfigKey string `yaml:"config_key"` // manifest JSON
	Channel   string `yaml:"channel"`    // PubSub channel name
	KeyPrefix string `yaml:"key_prefix"` // prefix for ${redis:...} lookups
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			TCPPort:  8081,
			UDPPort:  8082,
			HTTPPort: 8080,
		},
		Redis: RedisConfig{
			Enabled:   true,
			Address:   "localhost:6379",
			ConfigKey: "fieldgate_config",
			Channel:   "fieldgate_updates",
			KeyPrefix: "fieldgate:",
		},
		Log:        LogConfig{Level: "info"},
		BufferSize: 65536,
		BatchSize:  100,
	}
}

// Load reads path over the defaults and applies FIELDGATE_* environment
// overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		// #nosec G304 -- path comes from the operator's command line.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides scalar settings from the environment.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"FIELDGATE_TCP_PORT":  &cfg.Server.TCPPort,
		"FIELDGATE_UDP_PORT":  &cfg.Server.UDPPort,
		"FIELDGATE_HTTP_PORT": &cfg.Server.HTTPPort,
		"FIELDGATE_REDIS_DB":  &cfg.Redis.DB,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	strs := map[string]*string{
		"FIELDGATE_REDIS_ADDR":     &cfg.Redis.Address,
		"FIELDGATE_REDIS_PASSWORD": &cfg.Redis.Password,
		"FIELDGATE_LOG_LEVEL":      &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("FIELDGATE_REDIS_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FIELDGATE_REDIS_ENABLED: %w", err)
		}
		cfg.Redis.Enabled = b
	}
	return nil
}

var (
	ErrInvalidPort       = errors.New("port out of range")
	ErrInvalidBufferSize = errors.New("buffer_size must be a power of 2")
	ErrMissingRedisAddr  = errors.New("redis.address is required when redis is enabled")
)

// Validate checks settings that would otherwise fail at startup. Static
// fields are never rejected here: a field without a name is reported when
// it is built.
func Validate(cfg *Config) error {
	var errs []error
	for name, port := range map[string]int{
		"server.tcp_port":  cfg.Server.TCPPort,
		"server.udp_port":  cfg.Server.UDPPort,
		"server.http_port": cfg.Server.HTTPPort,
	} {
		if port < 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s=%d: %w", name, port, ErrInvalidPort))
		}
	}
	if cfg.BufferSize == 0 || cfg.BufferSize&(cfg.BufferSize-1) != 0 {
		errs = append(errs, fmt.Errorf("buffer_size=%d: %w", cfg.BufferSize, ErrInvalidBufferSize))
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Address) == "" {
		errs = append(errs, ErrMissingRedisAddr)
	}
	if cfg.MQTT != nil {
		if err := cfg.MQTT.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Fields builds the configured static fields.
func (c *Config) Fields() field.List {
	return field.BuildAll(c.StaticFields)
}
