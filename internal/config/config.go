// ABOUTME: Configuration loading and parsing for coven-chat
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults, and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-chat/internal/client"
)

// Defaults applied to fields left empty.
const (
	DefaultBaseURL      = "http://localhost:8080/api"
	DefaultRememberFor  = 30 * 24 * time.Hour
	DefaultTombstoneTTL = 2 * time.Minute
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config represents the complete coven-chat configuration
type Config struct {
	API           APIConfig           `yaml:"api" toml:"api"`
	Identity      IdentityConfig      `yaml:"identity" toml:"identity"`
	Conversations ConversationsConfig `yaml:"conversations" toml:"conversations"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
}

// APIConfig holds the chat backend location
type APIConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
}

// IdentityConfig holds where and for how long the user id is remembered
type IdentityConfig struct {
	Path        string        `yaml:"path" toml:"path"`
	RememberFor time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	RememberForRaw string `yaml:"remember_for" toml:"remember_for"`
}

// ConversationsConfig holds conversation store tuning
type ConversationsConfig struct {
	TombstoneTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	TombstoneTTLRaw string `yaml:"tombstone_ttl" toml:"tombstone_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
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

// applyDefaults fills empty fields. Durations must already be parsed.
func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.Model == "" {
		cfg.API.Model = client.DefaultModel
	}
	if cfg.Identity.Path == "" {
		cfg.Identity.Path = filepath.Join(DataDir(), "chat.db")
	}
	cfg.Identity.Path = expandHome(cfg.Identity.Path)
	if cfg.Identity.RememberForRaw == "" {
		cfg.Identity.RememberFor = DefaultRememberFor
	}
	if cfg.Conversations.TombstoneTTLRaw == "" {
		cfg.Conversations.TombstoneTTL = DefaultTombstoneTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("api.base_url must include a host")
	}

	if c.Identity.Path == "" {
		return fmt.Errorf("identity.path is required")
	}
	if c.Identity.RememberFor < 0 {
		return fmt.Errorf("identity.remember_for must not be negative")
	}
	if c.Conversations.TombstoneTTL < 0 {
		return fmt.Errorf("conversations.tombstone_ttl must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Identity.RememberForRaw != "" {
		cfg.Identity.RememberFor, err = time.ParseDuration(cfg.Identity.RememberForRaw)
		if err != nil {
			return fmt.Errorf("parsing remember_for %q: %w", cfg.Identity.RememberForRaw, err)
		}
	}

	if cfg.Conversations.TombstoneTTLRaw != "" {
		cfg.Conversations.TombstoneTTL, err = time.ParseDuration(cfg.Conversations.TombstoneTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing tombstone_ttl %q: %w", cfg.Conversations.TombstoneTTLRaw, err)
		}
	}

	return nil
}

// Path returns the path to the config file.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func Path() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.yaml")
}

// DataDir returns the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

// expandHome replaces a leading ~/ with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}
