package router

import "time"

const (
	defaultQueueSize        = 64
	defaultSubscriberBuffer = 256
	defaultInputTimeout     = 0
)

// Config defines the router's buffering. Durations are Go duration strings.
type Config struct {
	// Shell requests waiting behind the one in flight.
	QueueSize int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`

	// Broadcasts buffered per IOPub subscriber before messages are dropped.
	SubscriberBuffer int `json:"subscriber_buffer,omitempty" yaml:"subscriber_buffer,omitempty"`

	// How long an input request waits for its reply. Empty waits until the
	// request is abandoned.
	InputTimeout string `json:"input_timeout,omitempty" yaml:"input_timeout,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:        defaultQueueSize,
		SubscriberBuffer: defaultSubscriberBuffer,
	}
}

func (c *Config) Merge(source *Config) {
	if source.QueueSize > 0 {
		c.QueueSize = source.QueueSize
	}

	if source.SubscriberBuffer > 0 {
		c.SubscriberBuffer = source.SubscriberBuffer
	}

	if source.InputTimeout != "" {
		c.InputTimeout = source.InputTimeout
	}
}

// InputTimeoutDuration returns the input wait limit, 0 for none.
func (c *Config) InputTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.InputTimeout)
	if err != nil || d < 0 {
		return defaultInputTimeout
	}
	return d
}
