package openai

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the OpenAI provider configuration.
type Config struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// DebugBodies logs raw response bodies at debug level.
	DebugBodies bool `mapstructure:"debug_bodies"`

	// StartupCheck probes /v1/models once at startup and logs the result.
	StartupCheck bool `mapstructure:"startup_check"`
}

// DefaultConfig returns the defaults used by the relay.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://api.openai.com",
		Model:     "gpt-3.5-turbo-0125",
		MaxTokens: 50,
		Timeout:   2 * time.Minute,
	}
}

// Validate reports configuration values the provider cannot run with.
func (c Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("openai.base_url %q is not an absolute URL", c.BaseURL)
		}
	}
	if c.Model == "" {
		return errors.New("openai.model is required")
	}
	if c.MaxTokens <= 0 {
		return errors.New("openai.max_tokens must be positive")
	}
	if c.Timeout < 0 {
		return errors.New("openai.timeout must not be negative")
	}
	return nil
}
