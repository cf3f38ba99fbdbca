// Package config loads the dashboard's configuration file and resolves paths inside the
// XDG configuration directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName is the application directory name.
	AppName = "opsdash"

	// ConfigFile is the configuration filename inside the config directory.
	ConfigFile = "config.yaml"

	// APIKeyFile holds the remote store API key.
	APIKeyFile = "api_key"

	// LogFile is the default log destination; the TUI owns the terminal.
	LogFile = "opsdash.log"
)

// Backends and feed kinds.
const (
	BackendGraphQL = "graphql"
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"

	FeedRedis = "redis"
	FeedLocal = "local"
)

// Config is the dashboard configuration.
type Config struct {
	// Dir is the configuration directory. It is not read from the file.
	Dir string `yaml:"-"`

	// Backend selects the row store: graphql, sqlite or memory.
	Backend string `yaml:"backend"`

	GraphQL GraphQLConfig `yaml:"graphql"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Feed    FeedConfig    `yaml:"feed"`
	Search  SearchConfig  `yaml:"search"`
	Log     LogConfig     `yaml:"log"`
	Auth    AuthConfig    `yaml:"auth"`
}

// GraphQLConfig configures the remote backend.
type GraphQLConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// SQLiteConfig configures the local backend.
type SQLiteConfig struct {
	// Path of the database file. Default: <config dir>/opsdash.db
	Path string `yaml:"path"`
}

// FeedConfig configures change notifications.
type FeedConfig struct {
	// Kind is redis (shared across processes) or local (this process only).
	Kind string `yaml:"kind"`

	RedisAddr     string `yaml:"redis_addr"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// SearchConfig configures the note search store.
type SearchConfig struct {
	PageSize int           `yaml:"page_size"`
	Debounce time.Duration `yaml:"debounce"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// File receives the log. Default: <config dir>/opsdash.log
	File string `yaml:"file"`
}

// AuthConfig configures API key lookup.
type AuthConfig struct {
	// KeyCommand, when set, is run to obtain the key before the key file is read.
	KeyCommand string `yaml:"key_command"`
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Default returns the configuration used when no file exists.
func Default(dir string) *Config {
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return &Config{
		Dir:     dir,
		Backend: BackendSQLite,
		SQLite:  SQLiteConfig{Path: filepath.Join(dir, "opsdash.db")},
		Feed:    FeedConfig{Kind: FeedLocal, RedisAddr: "localhost:6379"},
		Search:  SearchConfig{PageSize: 30, Debounce: 300 * time.Millisecond},
		Log:     LogConfig{Level: "info", File: filepath.Join(dir, LogFile)},
	}
}

// Load reads <dir>/config.yaml over the defaults. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default(dir)
	data, err := os.ReadFile(cfg.Path())
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfg.Path(), err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGraphQL:
		if c.GraphQL.Endpoint == "" {
			return fmt.Errorf("backend %s requires graphql.endpoint", c.Backend)
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("backend %s requires sqlite.path", c.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q (want graphql, sqlite or memory)", c.Backend)
	}

	switch c.Feed.Kind {
	case FeedRedis:
		if c.Feed.RedisAddr == "" {
			return fmt.Errorf("feed %s requires feed.redis_addr", c.Feed.Kind)
		}
	case FeedLocal:
	default:
		return fmt.Errorf("unknown feed kind %q (want redis or local)", c.Feed.Kind)
	}

	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be positive, got %d", c.Search.PageSize)
	}
	if c.Search.Debounce <= 0 {
		return fmt.Errorf("search.debounce must be positive, got %s", c.Search.Debounce)
	}
	return nil
}

// Path returns the configuration file path.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, ConfigFile)
}

// APIKeyPath returns the path of the API key file.
func (c *Config) APIKeyPath() string {
	return filepath.Join(c.Dir, APIKeyFile)
}

// EnsureDir creates the config directory if it doesn't exist.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}
