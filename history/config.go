package history

import "fmt"

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds history store initialization parameters.
type Config struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"` // "memory" or "sqlite".
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`       // SQLite database file; empty keeps it in memory.
}

// DefaultConfig returns the default history configuration (in-memory).
func DefaultConfig() Config {
	return Config{Backend: BackendMemory}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewStore creates a Store from configuration.
func NewStore(cfg *Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		store, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s", cfg.Backend)
	}
}
