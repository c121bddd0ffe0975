// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/coven-chat/internal/client"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
api:
  base_url: "https://chat.example.com/api"
  model: "mixtral-8x7b"

identity:
  path: "/var/lib/coven/chat.db"
  remember_for: "168h"

conversations:
  tombstone_ttl: "30s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://chat.example.com/api" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://chat.example.com/api")
	}
	if cfg.API.Model != "mixtral-8x7b" {
		t.Errorf("API.Model = %q, want %q", cfg.API.Model, "mixtral-8x7b")
	}
	if cfg.Identity.Path != "/var/lib/coven/chat.db" {
		t.Errorf("Identity.Path = %q, want %q", cfg.Identity.Path, "/var/lib/coven/chat.db")
	}
	if cfg.Identity.RememberFor != 168*time.Hour {
		t.Errorf("Identity.RememberFor = %v, want %v", cfg.Identity.RememberFor, 168*time.Hour)
	}
	if cfg.Conversations.TombstoneTTL != 30*time.Second {
		t.Errorf("Conversations.TombstoneTTL = %v, want %v", cfg.Conversations.TombstoneTTL, 30*time.Second)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "chat.toml", `
[api]
base_url = "http://10.0.0.5:9000/api"

[identity]
path = "/tmp/chat.db"
remember_for = "1h"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "http://10.0.0.5:9000/api" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "http://10.0.0.5:9000/api")
	}
	if cfg.Identity.RememberFor != time.Hour {
		t.Errorf("Identity.RememberFor = %v, want %v", cfg.Identity.RememberFor, time.Hour)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging.Format = %q, want default %q", cfg.Logging.Format, DefaultLogFormat)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	configPath := writeConfig(t, "chat.yaml", "logging:\n  level: info\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if cfg.API.Model != client.DefaultModel {
		t.Errorf("API.Model = %q, want %q", cfg.API.Model, client.DefaultModel)
	}
	if want := filepath.Join("/data", "coven", "chat.db"); cfg.Identity.Path != want {
		t.Errorf("Identity.Path = %q, want %q", cfg.Identity.Path, want)
	}
	if cfg.Identity.RememberFor != DefaultRememberFor {
		t.Errorf("Identity.RememberFor = %v, want %v", cfg.Identity.RememberFor, DefaultRememberFor)
	}
	if cfg.Conversations.TombstoneTTL != DefaultTombstoneTTL {
		t.Errorf("Conversations.TombstoneTTL = %v, want %v", cfg.Conversations.TombstoneTTL, DefaultTombstoneTTL)
	}
}

func TestLoad_ZeroRememberForMeansNoExpiry(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", "identity:\n  remember_for: \"0s\"\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identity.RememberFor != 0 {
		t.Errorf("Identity.RememberFor = %v, want 0", cfg.Identity.RememberFor)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHAT_HOST", "chat.internal")
	t.Setenv("TEST_CHAT_MODEL", "llama3-70b")

	configPath := writeConfig(t, "chat.yaml", `
api:
  base_url: "https://${TEST_CHAT_HOST}/api"
  model: "${TEST_CHAT_MODEL}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://chat.internal/api" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://chat.internal/api")
	}
	if cfg.API.Model != "llama3-70b" {
		t.Errorf("API.Model = %q, want %q", cfg.API.Model, "llama3-70b")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	// Ensure the env var is NOT set
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	configPath := writeConfig(t, "chat.yaml", `
api:
  model: "${UNSET_VAR_FOR_TEST}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// An unset variable expands to empty, which then takes the default
	if cfg.API.Model != client.DefaultModel {
		t.Errorf("API.Model = %q, want %q", cfg.API.Model, client.DefaultModel)
	}
}

func TestLoad_HomeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	configPath := writeConfig(t, "chat.yaml", "identity:\n  path: \"~/coven/chat.db\"\n")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if want := filepath.Join(home, "coven", "chat.db"); cfg.Identity.Path != want {
		t.Errorf("Identity.Path = %q, want %q", cfg.Identity.Path, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/chat.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, DefaultBaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadOrDefault_InvalidFileStillFails(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", "api: [not, a, map\n")
	if _, err := LoadOrDefault(configPath); err == nil {
		t.Error("LoadOrDefault() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "chat.yaml", `
api:
  base_url: "http://localhost:8080/api"
  invalid yaml here [
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	configPath := writeConfig(t, "chat.toml", "[api\nbase_url = \n")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid TOML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name:    "invalid remember_for",
			content: "identity:\n  remember_for: \"a month\"\n",
			field:   "remember_for",
		},
		{
			name:    "invalid tombstone_ttl",
			content: "conversations:\n  tombstone_ttl: \"soon\"\n",
			field:   "tombstone_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "chat.yaml", tt.content)

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected error for invalid duration, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Identity.Path = "/tmp/chat.db"
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: "api.base_url is required"},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: "http or https"},
		{name: "ftp base url", mutate: func(c *Config) { c.API.BaseURL = "ftp://host/api" }, wantErr: "http or https"},
		{name: "missing host", mutate: func(c *Config) { c.API.BaseURL = "http:///api" }, wantErr: "host"},
		{name: "empty identity path", mutate: func(c *Config) { c.Identity.Path = "" }, wantErr: "identity.path"},
		{name: "negative remember_for", mutate: func(c *Config) { c.Identity.RememberFor = -time.Second }, wantErr: "remember_for"},
		{name: "negative tombstone_ttl", mutate: func(c *Config) { c.Conversations.TombstoneTTL = -time.Second }, wantErr: "tombstone_ttl"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("COVEN_CHAT_CONFIG", "/etc/coven/chat.toml")
		if got := Path(); got != "/etc/coven/chat.toml" {
			t.Errorf("Path() = %q, want %q", got, "/etc/coven/chat.toml")
		}
	})

	t.Run("xdg config home", func(t *testing.T) {
		t.Setenv("COVEN_CHAT_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/cfg")
		if want := filepath.Join("/cfg", "coven", "chat.yaml"); Path() != want {
			t.Errorf("Path() = %q, want %q", Path(), want)
		}
	})
}
