package engine

import "fmt"

const defaultEchoMaxLines = 2

// Config holds execution engine parameters.
type Config struct {
	// EchoMaxLines is the longest trailing block still run in echo mode when
	// code splits into several blocks.
	EchoMaxLines int `json:"echo_max_lines,omitempty" yaml:"echo_max_lines,omitempty"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{EchoMaxLines: defaultEchoMaxLines}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.EchoMaxLines > 0 {
		c.EchoMaxLines = source.EchoMaxLines
	}
}

// Validate reports configuration values the engine cannot run with.
func (c *Config) Validate() error {
	if c.EchoMaxLines < 1 {
		return fmt.Errorf("%w: echo_max_lines must be at least 1, got %d", ErrInvalidConfig, c.EchoMaxLines)
	}
	return nil
}
