package kernel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/evalkernel/engine"
	"github.com/tailored-agentic-units/evalkernel/heartbeat"
	"github.com/tailored-agentic-units/evalkernel/history"
	"github.com/tailored-agentic-units/evalkernel/repl"
	"github.com/tailored-agentic-units/evalkernel/router"
	"github.com/tailored-agentic-units/evalkernel/session"
)

const (
	defaultIP       = "127.0.0.1"
	defaultObserver = "slog"
)

// TransportConfig places the four channels. Port 0 binds a free port.
type TransportConfig struct {
	IP        string `json:"ip,omitempty" yaml:"ip,omitempty"`
	ShellPort int    `json:"shell_port,omitempty" yaml:"shell_port,omitempty"`
	IOPubPort int    `json:"iopub_port,omitempty" yaml:"iopub_port,omitempty"`
	StdinPort int    `json:"stdin_port,omitempty" yaml:"stdin_port,omitempty"`
	HBPort    int    `json:"hb_port,omitempty" yaml:"hb_port,omitempty"`
}

// DefaultTransportConfig binds every channel to a free loopback port.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{IP: defaultIP}
}

func (c *TransportConfig) Merge(source *TransportConfig) {
	if source.IP != "" {
		c.IP = source.IP
	}
	if source.ShellPort > 0 {
		c.ShellPort = source.ShellPort
	}
	if source.IOPubPort > 0 {
		c.IOPubPort = source.IOPubPort
	}
	if source.StdinPort > 0 {
		c.StdinPort = source.StdinPort
	}
	if source.HBPort > 0 {
		c.HBPort = source.HBPort
	}
}

// Config holds initialization parameters for all kernel subsystems.
// Each subsystem section delegates to that subsystem's config-driven constructor.
type Config struct {
	Session   session.Config   `json:"session" yaml:"session"`
	Engine    engine.Config    `json:"engine" yaml:"engine"`
	History   history.Config   `json:"history" yaml:"history"`
	REPL      repl.Config      `json:"repl" yaml:"repl"`
	Router    router.Config    `json:"router" yaml:"router"`
	Heartbeat heartbeat.Config `json:"heartbeat" yaml:"heartbeat"`
	Transport TransportConfig  `json:"transport" yaml:"transport"`

	// Observer names registered observability.Observers, comma separated ("slog,zap").
	Observer string `json:"observer,omitempty" yaml:"observer,omitempty"`

	// ConnectionFile receives the bound ports once the kernel listens.
	ConnectionFile string `json:"connection_file,omitempty" yaml:"connection_file,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Session:   session.DefaultConfig(),
		Engine:    engine.DefaultConfig(),
		History:   history.DefaultConfig(),
		REPL:      repl.DefaultConfig(),
		Router:    router.DefaultConfig(),
		Heartbeat: heartbeat.DefaultConfig(),
		Transport: DefaultTransportConfig(),
		Observer:  defaultObserver,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Session.Merge(&source.Session)
	c.Engine.Merge(&source.Engine)
	c.History.Merge(&source.History)
	c.REPL.Merge(&source.REPL)
	c.Router.Merge(&source.Router)
	c.Heartbeat.Merge(&source.Heartbeat)
	c.Transport.Merge(&source.Transport)

	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.ConnectionFile != "" {
		c.ConnectionFile = source.ConnectionFile
	}
}

// LoadConfig reads a JSON or YAML (.yaml, .yml) config file, merges it with
// defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
