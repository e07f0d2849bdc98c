// Package config provides layered configuration for auggie-index:
// hardcoded defaults, an optional user YAML file, then AUGGIE_*
// environment variable overrides, in increasing precedence. Credentials
// (the context-engine token, git-host tokens, the webhook secret) are
// environment-only and never written back to a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete auggie-index configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// EngineConfig locates the Context Engine. The token is environment-only
// (AUGGIE_API_TOKEN) and deliberately has no YAML key.
type EngineConfig struct {
	APIURL   string `yaml:"api_url" json:"api_url"`
	APIToken string `yaml:"-" json:"-"`
}

// StoreType discriminates the index-state persistence backend.
type StoreType string

const (
	StoreTypeLocal StoreType = "local"
	StoreTypeS3    StoreType = "s3"
)

// StoreConfig selects and parameterizes the index store backend.
type StoreConfig struct {
	Type StoreType `yaml:"type" json:"type"`
	// Path overrides the OS-default local store directory.
	Path string   `yaml:"path" json:"path"`
	S3   S3Config `yaml:"s3" json:"s3"`
}

// S3Config parameterizes the object-store backend. Credentials ride the
// AWS SDK's standard chain rather than this file.
type S3Config struct {
	Bucket       string `yaml:"bucket" json:"bucket"`
	Prefix       string `yaml:"prefix" json:"prefix"`
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
	Region       string `yaml:"region" json:"region"`
	UsePathStyle bool   `yaml:"use_path_style" json:"use_path_style"`
}

// ServerConfig parameterizes the tool server surface.
type ServerConfig struct {
	// Transport is "stdio" or "http".
	Transport string `yaml:"transport" json:"transport"`
	Addr      string `yaml:"addr" json:"addr"`
	// APIKey guards the HTTP surface; environment-only (AUGGIE_API_KEY).
	APIKey      string   `yaml:"-" json:"-"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
	SearchOnly  bool     `yaml:"search_only" json:"search_only"`
	// WebhookSecret enables the GitHub webhook endpoint;
	// environment-only (AUGGIE_WEBHOOK_SECRET).
	WebhookSecret string `yaml:"-" json:"-"`
}

// IndexConfig parameterizes indexing runs.
type IndexConfig struct {
	// MaxFileSizeBytes is parsed from the config file, but no indexing
	// path reads it, so it does not change the filter pipeline's 1 MiB
	// size cap.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" json:"max_file_size_bytes"`
}

// LoggingConfig parameterizes structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// New returns the hardcoded defaults.
func New() *Config {
	return &Config{
		Store: StoreConfig{Type: StoreTypeLocal},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8377",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// UserConfigPath returns the user configuration file location,
// following the XDG Base Directory specification.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "auggie-index", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "auggie-index", "config.yaml")
	}
	return filepath.Join(home, ".config", "auggie-index", "config.yaml")
}

// DefaultStorePath resolves the OS default index-state directory:
// ~/.local/share/auggie-index on Linux (XDG-aware),
// ~/Library/Application Support/auggie-index on macOS, and
// %LOCALAPPDATA%\auggie-index on Windows.
func DefaultStorePath() string {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "auggie-index")
		}
		return filepath.Join(home, "Library", "Application Support", "auggie-index")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "auggie-index")
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "auggie-index")
		}
		return filepath.Join(home, "AppData", "Local", "auggie-index")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "auggie-index")
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "auggie-index")
		}
		return filepath.Join(home, ".local", "share", "auggie-index")
	}
}

// Load builds the effective configuration: defaults, then the user
// config file when present, then environment overrides.
func Load() (*Config, error) {
	return load(UserConfigPath())
}

func load(path string) (*Config, error) {
	cfg := New()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies AUGGIE_* environment variables, the highest
// precedence layer below explicit CLI flags.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUGGIE_API_URL"); v != "" {
		c.Engine.APIURL = v
	}
	if v := os.Getenv("AUGGIE_API_TOKEN"); v != "" {
		c.Engine.APIToken = v
	}
	if v := os.Getenv("AUGGIE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("AUGGIE_STORE_TYPE"); v != "" {
		c.Store.Type = StoreType(v)
	}
	if v := os.Getenv("AUGGIE_S3_BUCKET"); v != "" {
		c.Store.S3.Bucket = v
	}
	if v := os.Getenv("AUGGIE_S3_PREFIX"); v != "" {
		c.Store.S3.Prefix = v
	}
	if v := os.Getenv("AUGGIE_S3_ENDPOINT"); v != "" {
		c.Store.S3.Endpoint = v
	}
	if v := os.Getenv("AUGGIE_S3_REGION"); v != "" {
		c.Store.S3.Region = v
	}
	if v := os.Getenv("AUGGIE_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Store.S3.UsePathStyle = b
		}
	}
	if v := os.Getenv("AUGGIE_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AUGGIE_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("AUGGIE_WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
	if v := os.Getenv("AUGGIE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreTypeLocal, StoreTypeS3:
	default:
		return fmt.Errorf("config: unknown store type %q", c.Store.Type)
	}
	if c.Store.Type == StoreTypeS3 && c.Store.S3.Bucket == "" {
		return fmt.Errorf("config: store type s3 requires a bucket")
	}
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("config: unknown server transport %q", c.Server.Transport)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	return nil
}

// StorePath resolves the effective local store directory: explicit
// config (which the env layer already merged) beats the OS default.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return DefaultStorePath()
}
