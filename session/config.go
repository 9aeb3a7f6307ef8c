package session

const defaultUsername = "kernel"

// Config holds session initialization parameters.
type Config struct {
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`             // Reuse an identifier; empty generates one.
	Username string `json:"username,omitempty" yaml:"username,omitempty"` // Stamped on every header.
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{Username: defaultUsername}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.ID != "" {
		c.ID = source.ID
	}
	if source.Username != "" {
		c.Username = source.Username
	}
}

// New creates a Session from configuration.
func New(cfg *Config) (Session, error) {
	if cfg.ID != "" {
		return Resume(cfg.ID, cfg.Username), nil
	}
	return NewSession(cfg.Username), nil
}
