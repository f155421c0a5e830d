package ws

import (
	"errors"
	"time"
)

// Config holds the relay endpoint configuration.
type Config struct {
	// Path is the mux pattern the relay accepts upgrades on.
	Path string `mapstructure:"path"`

	// MaxConnections caps concurrent relay connections; 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections"`

	// ReadLimit is the largest inbound frame accepted, in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`

	// WriteTimeout bounds each reply write; 0 disables the bound.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// OriginPatterns restricts browser origins. Empty accepts any origin.
	OriginPatterns []string `mapstructure:"origin_patterns"`

	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig controls bounded retry of failed upstream calls.
type RetryConfig struct {
	// MaxRetries is the number of extra attempts after the first; 0 disables retry.
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		Path:         "/",
		ReadLimit:    1 << 20,
		WriteTimeout: 10 * time.Second,
		Retry: RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

// Validate reports configuration values the relay cannot run with.
func (c Config) Validate() error {
	if c.Path == "" || c.Path[0] != '/' {
		return errors.New("relay.path must start with /")
	}
	if c.MaxConnections < 0 {
		return errors.New("relay.max_connections must not be negative")
	}
	if c.ReadLimit <= 0 {
		return errors.New("relay.read_limit must be positive")
	}
	if c.WriteTimeout < 0 {
		return errors.New("relay.write_timeout must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("relay.retry.max_retries must not be negative")
	}
	if c.Retry.MaxRetries > 0 && c.Retry.InitialInterval <= 0 {
		return errors.New("relay.retry.initial_interval must be positive when retries are enabled")
	}
	return nil
}
