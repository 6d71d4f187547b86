package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/jscsandbox/internal/logging"
	"github.com/GriffinCanCode/jscsandbox/sandbox"
)

// Config holds all host configuration.
type Config struct {
	Sandbox SandboxConfig
	Logging LogConfig
	Metrics MetricsConfig
	Status  StatusConfig
}

// SandboxConfig holds engine defaults applied to every runtime.
type SandboxConfig struct {
	TimeoutMS        int    `envconfig:"JSC_SANDBOX_TIMEOUT_MS" default:"0"`
	MaxCallStackSize int    `envconfig:"JSC_SANDBOX_MAX_STACK" default:"1024"`
	MaxDepth         int    `envconfig:"JSC_SANDBOX_MAX_DEPTH" default:"64"`
	MaxNodes         int    `envconfig:"JSC_SANDBOX_MAX_NODES" default:"1048576"`
	ProgramCacheSize int    `envconfig:"JSC_SANDBOX_PROGRAM_CACHE" default:"128"`
	Console          bool   `envconfig:"JSC_SANDBOX_CONSOLE" default:"true"`
	ModuleName       string `envconfig:"JSC_SANDBOX_MODULE" default:"RNJSCSandbox"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// StatusConfig holds the status server settings. An empty address keeps
// the server off.
type StatusConfig struct {
	Addr      string   `envconfig:"JSC_STATUS_ADDR" default:""`
	RateLimit int      `envconfig:"JSC_STATUS_RPS" default:"20"`
	Burst     int      `envconfig:"JSC_STATUS_BURST" default:"40"`
	Origins   []string `envconfig:"JSC_STATUS_ORIGINS" default:"*"`
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

// LoadOrDefault loads configuration from environment. When that fails it
// returns the defaults together with the load error so the caller can
// report it once a logger exists.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			TimeoutMS:        0,
			MaxCallStackSize: 1024,
			MaxDepth:         64,
			MaxNodes:         sandbox.DefaultMaxNodes,
			ProgramCacheSize: 128,
			Console:          true,
			ModuleName:       "RNJSCSandbox",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Status: StatusConfig{
			RateLimit: 20,
			Burst:     40,
			Origins:   []string{"*"},
		},
	}
}

// Validate rejects values the engine cannot honour.
func (c *Config) Validate() error {
	switch {
	case c.Sandbox.TimeoutMS < 0:
		return fmt.Errorf("invalid config: JSC_SANDBOX_TIMEOUT_MS must be >= 0, got %d", c.Sandbox.TimeoutMS)
	case c.Sandbox.MaxCallStackSize < 0:
		return fmt.Errorf("invalid config: JSC_SANDBOX_MAX_STACK must be >= 0, got %d", c.Sandbox.MaxCallStackSize)
	case c.Sandbox.MaxDepth < 1:
		return fmt.Errorf("invalid config: JSC_SANDBOX_MAX_DEPTH must be >= 1, got %d", c.Sandbox.MaxDepth)
	case c.Sandbox.MaxNodes < 1:
		return fmt.Errorf("invalid config: JSC_SANDBOX_MAX_NODES must be >= 1, got %d", c.Sandbox.MaxNodes)
	case c.Sandbox.ProgramCacheSize < 0:
		return fmt.Errorf("invalid config: JSC_SANDBOX_PROGRAM_CACHE must be >= 0, got %d", c.Sandbox.ProgramCacheSize)
	case c.Sandbox.ModuleName == "":
		return fmt.Errorf("invalid config: JSC_SANDBOX_MODULE must not be empty")
	case c.Status.RateLimit < 0 || c.Status.Burst < 0:
		return fmt.Errorf("invalid config: JSC_STATUS_RPS and JSC_STATUS_BURST must be >= 0")
	}
	return nil
}

// Timeout returns the default per-evaluation budget; zero means unbounded.
func (s SandboxConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Runtime converts the section into engine configuration. Logger and
// metrics are left for the caller to attach.
func (s SandboxConfig) Runtime() sandbox.Config {
	cfg := sandbox.DefaultConfig()
	cfg.Timeout = s.Timeout()
	cfg.MaxCallStackSize = s.MaxCallStackSize
	cfg.MaxDepth = s.MaxDepth
	cfg.MaxNodes = s.MaxNodes
	cfg.ProgramCacheSize = s.ProgramCacheSize
	cfg.Console = s.Console
	return cfg
}

// Logger converts the section into logger configuration.
func (l LogConfig) Logger() logging.Config {
	if l.Development {
		cfg := logging.DevelopmentConfig()
		cfg.Level = l.Level
		return cfg
	}
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	return cfg
}
