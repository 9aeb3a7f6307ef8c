package repl

// Config holds interpreter parameters.
type Config struct {
	// Imports are imported before any user code runs.
	Imports []string `json:"imports,omitempty" yaml:"imports,omitempty"`
}

// DefaultConfig returns the default interpreter configuration.
func DefaultConfig() Config {
	return Config{
		Imports: []string{"fmt", "strings", "strconv", "math", "sort", "errors", "time"},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if len(source.Imports) > 0 {
		c.Imports = source.Imports
	}
}
