package server

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Config holds the HTTP listener configuration.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// ShutdownTimeout bounds graceful shutdown, including relay drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              7746,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Addr returns the listen address as host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports configuration values the listener cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.New("server.port must be between 0 and 65535")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	if c.ReadHeaderTimeout < 0 {
		return errors.New("server.read_header_timeout must not be negative")
	}
	return nil
}
