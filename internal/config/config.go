// Package config loads llmrelay configuration from defaults, a YAML file and
// LLMRELAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/llmrelay/internal/credentials"
	"github.com/HerbHall/llmrelay/internal/llm/openai"
	"github.com/HerbHall/llmrelay/internal/server"
	"github.com/HerbHall/llmrelay/internal/ws"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override: LLMRELAY_SERVER_PORT=9000.
const EnvPrefix = "LLMRELAY"

const redacted = "[REDACTED]"

// Config is the decoded llmrelay configuration.
type Config struct {
	Server      server.Config      `mapstructure:"server"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	Relay       ws.Config          `mapstructure:"relay"`
	OpenAI      openai.Config      `mapstructure:"openai"`
	Credentials credentials.Config `mapstructure:"credentials"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. A missing
// config file is not an error; an explicit path that cannot be read is.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("llmrelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/llmrelay")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional OpenAI variable works as a fallback.
	if err := v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding api key env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	srv := server.DefaultConfig()
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)
	v.SetDefault("server.read_header_timeout", srv.ReadHeaderTimeout)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	relay := ws.DefaultConfig()
	v.SetDefault("relay.path", relay.Path)
	v.SetDefault("relay.max_connections", relay.MaxConnections)
	v.SetDefault("relay.read_limit", relay.ReadLimit)
	v.SetDefault("relay.write_timeout", relay.WriteTimeout)
	v.SetDefault("relay.origin_patterns", []string{})
	v.SetDefault("relay.retry.max_retries", relay.Retry.MaxRetries)
	v.SetDefault("relay.retry.initial_interval", relay.Retry.InitialInterval)
	v.SetDefault("relay.retry.max_interval", relay.Retry.MaxInterval)

	oa := openai.DefaultConfig()
	v.SetDefault("openai.base_url", oa.BaseURL)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", oa.Model)
	v.SetDefault("openai.max_tokens", oa.MaxTokens)
	v.SetDefault("openai.timeout", oa.Timeout)
	v.SetDefault("openai.debug_bodies", oa.DebugBodies)
	v.SetDefault("openai.startup_check", oa.StartupCheck)

	creds := credentials.DefaultConfig()
	v.SetDefault("credentials.source", creds.Source)
	v.SetDefault("credentials.ssm_parameter", creds.SSMParameter)
	v.SetDefault("credentials.region", creds.Region)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", c.Logging.Format)
	}
	if err := c.Relay.Validate(); err != nil {
		return err
	}
	if err := c.OpenAI.Validate(); err != nil {
		return err
	}
	return c.Credentials.Validate()
}

// EffectiveYAML renders the merged configuration as YAML with the API key
// redacted.
func EffectiveYAML(v *viper.Viper) ([]byte, error) {
	settings := normalize(v.AllSettings()).(map[string]any)
	if oa, ok := settings["openai"].(map[string]any); ok {
		if key, _ := oa["api_key"].(string); key != "" {
			oa["api_key"] = redacted
		}
	}
	out, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}

// normalize renders durations in their string form so the YAML output can
// be fed back as a config file.
func normalize(val any) any {
	switch t := val.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case time.Duration:
		return t.String()
	default:
		return val
	}
}
