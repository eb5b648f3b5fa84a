// Package config loads service settings from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
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

const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "/etc/karaoke/config.yaml"}

// Store drivers and realtime transports.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	TransportLocal = "local"
	TransportRedis = "redis"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Store    StoreConfig    `koanf:"store"`
	Redis    RedisConfig    `koanf:"redis"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Session  SessionConfig  `koanf:"session"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	// CreateRateLimit is session creations per minute per IP. Zero disables it.
	CreateRateLimit int `koanf:"create_rate_limit"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type AuthConfig struct {
	LinkTokenSecret string `koanf:"link_token_secret"`
}

type StoreConfig struct {
	Driver      string `koanf:"driver"`
	DatabaseURL string `koanf:"database_url"`
}

type RedisConfig struct {
	URL     string `koanf:"url"`
	Channel string `koanf:"channel"`
}

type RealtimeConfig struct {
	Transport string `koanf:"transport"`
}

type SessionConfig struct {
	DefaultTTL       time.Duration `koanf:"default_ttl"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	MaxExtendMinutes int           `koanf:"max_extend_minutes"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3010,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			CreateRateLimit: 30,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Redis: RedisConfig{
			URL:     "redis://localhost:6379/0",
			Channel: "karaoke:broadcast",
		},
		Realtime: RealtimeConfig{
			Transport: TransportLocal,
		},
		Session: SessionConfig{
			DefaultTTL:       4 * time.Hour,
			SweepInterval:    time.Minute,
			MaxExtendMinutes: 240,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"port":               "server.port",
	"read_timeout":       "server.read_timeout",
	"write_timeout":      "server.write_timeout",
	"request_timeout":    "server.request_timeout",
	"shutdown_timeout":   "server.shutdown_timeout",
	"cors_origins":       "server.cors_origins",
	"create_rate_limit":  "server.create_rate_limit",
	"link_token_secret":  "auth.link_token_secret",
	"store_driver":       "store.driver",
	"database_url":       "store.database_url",
	"redis_url":          "redis.url",
	"redis_channel":      "redis.channel",
	"realtime_transport": "realtime.transport",
	"session_ttl":        "session.default_ttl",
	"sweep_interval":     "session.sweep_interval",
	"max_extend_minutes": "session.max_extend_minutes",
	"log_level":          "logging.level",
	"log_format":         "logging.format",
}

// envTransformFunc maps the flat variable names used in deployment to
// config paths. Unknown variables are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var sliceConfigPaths = []string{"server.cors_origins"}

// processSliceFields splits comma separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("config: set %s: %w", path, err)
		}
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.CreateRateLimit < 0 {
		errs = append(errs, errors.New("server.create_rate_limit must not be negative"))
	}
	if strings.TrimSpace(c.Auth.LinkTokenSecret) == "" {
		errs = append(errs, errors.New("auth.link_token_secret is required (LINK_TOKEN_SECRET)"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store.database_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Realtime.Transport {
	case TransportLocal:
	case TransportRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown realtime.transport %q", c.Realtime.Transport))
	}

	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if c.Session.DefaultTTL < 0 {
		errs = append(errs, errors.New("session.default_ttl must not be negative"))
	}
	if c.Session.MaxExtendMinutes <= 0 {
		errs = append(errs, errors.New("session.max_extend_minutes must be positive"))
	}

	return errors.Join(errs...)
}
