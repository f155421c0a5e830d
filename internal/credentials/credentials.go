// Package credentials resolves the bearer credential used for upstream
// completion calls. The value comes from configuration/environment or from
// AWS Systems Manager Parameter Store, never from source code.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Credential sources.
const (
	SourceEnv = "env"
	SourceSSM = "ssm"
)

// ErrMissingCredential is returned when the configured source yields no value.
var ErrMissingCredential = errors.New("credentials: api key is not configured")

// Config selects where the API key is read from.
type Config struct {
	Source       string `mapstructure:"source"`        // "env" (default) or "ssm"
	SSMParameter string `mapstructure:"ssm_parameter"` // parameter name when Source is "ssm"
	Region       string `mapstructure:"region"`        // optional AWS region override
}

// DefaultConfig returns the env-backed default.
func DefaultConfig() Config {
	return Config{Source: SourceEnv}
}

// Validate checks that the source is known and fully specified.
func (c Config) Validate() error {
	switch c.Source {
	case SourceEnv, "":
		return nil
	case SourceSSM:
		if strings.TrimSpace(c.SSMParameter) == "" {
			return errors.New("credentials: ssm_parameter is required when source is \"ssm\"")
		}
		return nil
	default:
		return fmt.Errorf("credentials: unknown source %q", c.Source)
	}
}

// Getter fetches a named parameter. *ParameterStore satisfies it.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Resolve returns the API key for cfg. configured is the key decoded from
// configuration or environment; store is only consulted for SourceSSM.
func Resolve(ctx context.Context, cfg Config, configured string, store Getter) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	var key string
	switch cfg.Source {
	case SourceSSM:
		if store == nil {
			return "", errors.New("credentials: parameter store not available")
		}
		v, err := store.GetParameter(ctx, cfg.SSMParameter)
		if err != nil {
			return "", fmt.Errorf("resolve api key: %w", err)
		}
		key = v
	default:
		key = configured
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingCredential
	}
	return key, nil
}
