package client

import (
	"time"

	"github.com/tailored-agentic-units/evalkernel/heartbeat"
)

const (
	defaultUsername = "frontend"
	defaultTimeout  = 30 * time.Second
)

// Config holds frontend connection parameters.
type Config struct {
	Username string `json:"username,omitempty" yaml:"username,omitempty"`

	// Timeout bounds one shell request that carries no deadline of its own.
	// execute_request is never bounded.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	Heartbeat heartbeat.Config `json:"heartbeat" yaml:"heartbeat"`
}

// DefaultConfig returns the default frontend configuration.
func DefaultConfig() Config {
	return Config{
		Username:  defaultUsername,
		Timeout:   defaultTimeout.String(),
		Heartbeat: heartbeat.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Username != "" {
		c.Username = source.Username
	}
	if source.Timeout != "" {
		c.Timeout = source.Timeout
	}
	c.Heartbeat.Merge(&source.Heartbeat)
}

// TimeoutDuration returns the shell request timeout, falling back to the
// default when unset or malformed.
func (c *Config) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}
