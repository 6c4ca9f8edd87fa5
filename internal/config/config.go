// ABOUTME: Configuration loading and parsing for pairwise
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, PAIRWISE_* overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete pairwise configuration
type Config struct {
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Keys    KeysConfig    `yaml:"keys" toml:"keys"`
	Chat    ChatConfig    `yaml:"chat" toml:"chat"`
	Export  ExportConfig  `yaml:"export" toml:"export"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// StoreConfig selects and configures the storage backend
type StoreConfig struct {
	Backend string       `yaml:"backend" toml:"backend" env:"PAIRWISE_STORE_BACKEND"`
	SQLite  SQLiteConfig `yaml:"sqlite" toml:"sqlite"`
	Pebble  PebbleConfig `yaml:"pebble" toml:"pebble"`
	Redis   RedisConfig  `yaml:"redis" toml:"redis"`
}

// SQLiteConfig holds the SQLite database location
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path" env:"PAIRWISE_SQLITE_PATH"`
}

// PebbleConfig holds the Pebble data directory
type PebbleConfig struct {
	Dir string `yaml:"dir" toml:"dir" env:"PAIRWISE_PEBBLE_DIR"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr        string        `yaml:"addr" toml:"addr" env:"PAIRWISE_REDIS_ADDR"`
	Password    string        `yaml:"password" toml:"password" env:"PAIRWISE_REDIS_PASSWORD"`
	DB          int           `yaml:"db" toml:"db" env:"PAIRWISE_REDIS_DB"`
	DialTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	DialTimeoutRaw string `yaml:"dial_timeout" toml:"dial_timeout" env:"PAIRWISE_REDIS_DIAL_TIMEOUT"`
}

// KeysConfig holds the prefixes used to build store identifiers
type KeysConfig struct {
	UserPrefix     string `yaml:"user_prefix" toml:"user_prefix"`
	MessagesPrefix string `yaml:"messages_prefix" toml:"messages_prefix"`
	ChatPrefix     string `yaml:"chat_prefix" toml:"chat_prefix"`
	HashPrefix     string `yaml:"hash_prefix" toml:"hash_prefix"`
	UsersKey       string `yaml:"users_key" toml:"users_key"`
}

// ChatConfig holds live chat settings
type ChatConfig struct {
	SubscriberBuffer int           `yaml:"subscriber_buffer" toml:"subscriber_buffer" env:"PAIRWISE_CHAT_SUBSCRIBER_BUFFER"`
	EchoTTL          time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	EchoTTLRaw string `yaml:"echo_ttl" toml:"echo_ttl" env:"PAIRWISE_CHAT_ECHO_TTL"`
}

// ExportConfig holds transcript export settings
type ExportConfig struct {
	Dir    string `yaml:"dir" toml:"dir" env:"PAIRWISE_EXPORT_DIR"`
	Format string `yaml:"format" toml:"format" env:"PAIRWISE_EXPORT_FORMAT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"PAIRWISE_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"PAIRWISE_LOG_FORMAT"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"PAIRWISE_METRICS_ENABLED"`
	Addr    string `yaml:"addr" toml:"addr" env:"PAIRWISE_METRICS_ADDR"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns a configuration that works without any file: an
// in-memory store and the standard key prefixes.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: "memory",
			SQLite:  SQLiteConfig{Path: "pairwise.db"},
			Pebble:  PebbleConfig{Dir: "pairwise.pebble"},
			Redis: RedisConfig{
				Addr:           "127.0.0.1:6379",
				DialTimeout:    5 * time.Second,
				DialTimeoutRaw: "5s",
			},
		},
		Keys: KeysConfig{
			UserPrefix:     "user",
			MessagesPrefix: "messages",
			ChatPrefix:     "chat",
			HashPrefix:     "hash",
			UsersKey:       "users",
		},
		Chat: ChatConfig{
			SubscriberBuffer: 64,
			EchoTTL:          10 * time.Second,
			EchoTTLRaw:       "10s",
		},
		Export: ExportConfig{
			Dir:    ".",
			Format: "text",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
			Path: "/metrics",
		},
	}
}

// DefaultPath returns the config file location: PAIRWISE_CONFIG if set,
// otherwise pairwise/config.yaml under the XDG config directory.
func DefaultPath() string {
	if p := os.Getenv("PAIRWISE_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pairwise", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "pairwise", "config.yaml")
}

// LoadOrDefault loads path when it exists and otherwise falls back to
// Default with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := finish(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then
// PAIRWISE_* variables override individual fields.
// Unset fields keep the values from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies environment overrides, parses durations and validates.
func finish(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite backend")
		}
	case "pebble":
		if c.Store.Pebble.Dir == "" {
			return fmt.Errorf("store.pebble.dir is required for the pebble backend")
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, sqlite, pebble, redis", c.Store.Backend)
	}

	prefixes := map[string]string{
		"keys.user_prefix":     c.Keys.UserPrefix,
		"keys.messages_prefix": c.Keys.MessagesPrefix,
		"keys.chat_prefix":     c.Keys.ChatPrefix,
		"keys.hash_prefix":     c.Keys.HashPrefix,
		"keys.users_key":       c.Keys.UsersKey,
	}
	for name, v := range prefixes {
		if v == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
		if strings.Contains(v, ":") {
			return fmt.Errorf("%s must not contain ':'", name)
		}
	}
	if c.Keys.MessagesPrefix == c.Keys.ChatPrefix {
		return fmt.Errorf("keys.messages_prefix and keys.chat_prefix must differ")
	}

	if c.Chat.SubscriberBuffer < 0 {
		return fmt.Errorf("chat.subscriber_buffer must not be negative")
	}
	if c.Chat.EchoTTL <= 0 {
		return fmt.Errorf("chat.echo_ttl must be positive, got %s", c.Chat.EchoTTL)
	}

	switch c.Export.Format {
	case "text", "html":
	default:
		return fmt.Errorf("export.format %q is not one of text, html", c.Export.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Store.Redis.DialTimeoutRaw != "" {
		cfg.Store.Redis.DialTimeout, err = time.ParseDuration(cfg.Store.Redis.DialTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dial_timeout %q: %w", cfg.Store.Redis.DialTimeoutRaw, err)
		}
	}

	if cfg.Chat.EchoTTLRaw != "" {
		cfg.Chat.EchoTTL, err = time.ParseDuration(cfg.Chat.EchoTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing echo_ttl %q: %w", cfg.Chat.EchoTTLRaw, err)
		}
	}

	return nil
}
