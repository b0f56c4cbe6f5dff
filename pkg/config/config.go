// Package config loads and validates the daemon configuration from a YAML
// file, with environment-variable overrides for deployment platforms that
// inject settings that way.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by StoreConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Auth modes accepted by AuthConfig.Mode.
const (
	AuthModeNone   = "none"
	AuthModeJWT    = "jwt"
	AuthModeAPIKey = "apikey"
)

// Config is the full daemon configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig selects and configures the backing store.
type StoreConfig struct {
	Backend string `yaml:"backend" validate:"required,oneof=memory file postgres s3"`

	// File backend.
	Dir string `yaml:"dir" validate:"required_if=Backend file"`

	// Postgres backend.
	DSN string `yaml:"dsn" validate:"required_if=Backend postgres"`

	// S3 backend.
	Bucket   string `yaml:"bucket" validate:"required_if=Backend s3"`
	SpoolDir string `yaml:"spool_dir"`
}

// AuthConfig configures the gate for server-side import and export. Mode
// "none" denies both operations; enabling them requires a gate.
type AuthConfig struct {
	Mode string `yaml:"mode" validate:"oneof=none jwt apikey"`

	// JWT mode.
	JWTSecret     string        `yaml:"jwt_secret" validate:"required_if=Mode jwt,omitempty,min=32"`
	TokenDuration time.Duration `yaml:"token_duration"`

	// Explicit opt-in to run import/export without any gate. Mirrors a
	// compile-time switch in older large-object servers; here it is a
	// config knob that must be set deliberately.
	AllowUngated bool `yaml:"allow_ungated"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns a configuration suitable for local development: in-memory
// store, no gate, info logging.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Auth: AuthConfig{
			Mode:          AuthModeNone,
			TokenDuration: time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path (if non-empty), applies environment overrides, then
// validates. A missing path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays LOBSTORE_* environment variables. Env wins over file so
// the same config file can be reused across deployments.
func (c *Config) applyEnv() {
	if v := os.Getenv("LOBSTORE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			c.Server.ListenAddr = ":" + v
		}
	}
	if v := os.Getenv("LOBSTORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("LOBSTORE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("LOBSTORE_PG_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("LOBSTORE_S3_BUCKET"); v != "" {
		c.Store.Bucket = v
	}
	if v := os.Getenv("LOBSTORE_AUTH_MODE"); v != "" {
		c.Auth.Mode = v
	}
	if v := os.Getenv("LOBSTORE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("LOBSTORE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration against the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: field %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
