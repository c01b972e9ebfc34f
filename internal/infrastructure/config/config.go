package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/guesthost/internal/ext"
	"github.com/GriffinCanCode/guesthost/internal/sandbox"
)

var validate = validator.New()

// Config holds all application configuration.
type Config struct {
	Runtime     RuntimeConfig
	Permissions PermissionsConfig
	Fetch       FetchConfig
	Admin       AdminConfig
	Logging     LogConfig
}

// RuntimeConfig holds guest runtime limits.
type RuntimeConfig struct {
	Timeout          time.Duration `envconfig:"GUEST_TIMEOUT" default:"5s" validate:"gte=0"`
	MaxCallStackSize int           `envconfig:"GUEST_MAX_CALL_STACK" default:"1024" validate:"gte=0"`
	Console          bool          `envconfig:"GUEST_CONSOLE" default:"true"`
	PoolSize         int           `envconfig:"GUEST_POOL_SIZE" default:"4" validate:"gte=1,lte=1024"`
}

// PermissionsConfig selects the permission backend.
type PermissionsConfig struct {
	Manifest        string `envconfig:"PERMISSIONS_MANIFEST"`
	AllowAll        bool   `envconfig:"PERMISSIONS_ALLOW_ALL" default:"false"`
	ResolveSymlinks bool   `envconfig:"PERMISSIONS_RESOLVE_SYMLINKS" default:"true"`
	AuditCapacity   int    `envconfig:"PERMISSIONS_AUDIT_CAPACITY" default:"1000" validate:"gte=0"`
}

// FetchConfig holds the outbound HTTP client settings.
type FetchConfig struct {
	Timeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s" validate:"gt=0"`
	RPS         float64       `envconfig:"FETCH_RPS" default:"0" validate:"gte=0"`
	Burst       int           `envconfig:"FETCH_BURST" default:"0" validate:"gte=0"`
	Retries     int           `envconfig:"FETCH_RETRIES" default:"2" validate:"gte=0,lte=10"`
	MaxBodySize int64         `envconfig:"FETCH_MAX_BODY" default:"10485760" validate:"gt=0"`
	UserAgent   string        `envconfig:"FETCH_USER_AGENT" default:"guesthost/1.0"`
}

// AdminConfig holds the admin HTTP server configuration. An empty address
// disables the server.
type AdminConfig struct {
	Addr  string `envconfig:"ADMIN_ADDR" validate:"omitempty,hostname_port"`
	RPS   int    `envconfig:"ADMIN_RPS" default:"20" validate:"gte=0"`
	Burst int    `envconfig:"ADMIN_BURST" default:"40" validate:"gte=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	fetch := ext.DefaultFetchConfig()
	rt := sandbox.DefaultConfig()
	return &Config{
		Runtime: RuntimeConfig{
			Timeout:          rt.Timeout,
			MaxCallStackSize: rt.MaxCallStackSize,
			Console:          rt.EnableConsole,
			PoolSize:         4,
		},
		Permissions: PermissionsConfig{
			ResolveSymlinks: true,
			AuditCapacity:   1000,
		},
		Fetch: FetchConfig{
			Timeout:     fetch.Timeout,
			Retries:     fetch.Retries,
			MaxBodySize: fetch.MaxBodySize,
			UserAgent:   fetch.UserAgent,
		},
		Admin: AdminConfig{
			RPS:   20,
			Burst: 40,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// Sandbox returns the runtime limits.
func (c RuntimeConfig) Sandbox() sandbox.Config {
	cfg := sandbox.DefaultConfig()
	cfg.Timeout = c.Timeout
	cfg.MaxCallStackSize = c.MaxCallStackSize
	cfg.EnableConsole = c.Console
	return cfg
}

// Client returns the fetch client settings.
func (c FetchConfig) Client() ext.FetchConfig {
	cfg := ext.DefaultFetchConfig()
	cfg.Timeout = c.Timeout
	cfg.RPS = c.RPS
	cfg.Burst = c.Burst
	cfg.Retries = c.Retries
	cfg.MaxBodySize = c.MaxBodySize
	cfg.UserAgent = c.UserAgent
	return cfg
}
