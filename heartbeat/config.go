package heartbeat

import "time"

const (
	defaultInterval  = time.Second
	defaultTimeout   = time.Second
	defaultMaxMisses = 5
)

// Config holds monitor timing. Durations are Go duration strings ("500ms").
type Config struct {
	Interval  string `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxMisses int    `json:"max_misses,omitempty" yaml:"max_misses,omitempty"`
}

// DefaultConfig returns the default monitor timing.
func DefaultConfig() Config {
	return Config{
		Interval:  defaultInterval.String(),
		Timeout:   defaultTimeout.String(),
		MaxMisses: defaultMaxMisses,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Interval != "" {
		c.Interval = source.Interval
	}
	if source.Timeout != "" {
		c.Timeout = source.Timeout
	}
	if source.MaxMisses > 0 {
		c.MaxMisses = source.MaxMisses
	}
}

// IntervalDuration returns the beat interval, falling back to the default
// when unset or malformed.
func (c *Config) IntervalDuration() time.Duration {
	return parseDuration(c.Interval, defaultInterval)
}

// TimeoutDuration returns how long one beat waits for its echo.
func (c *Config) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, defaultTimeout)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
