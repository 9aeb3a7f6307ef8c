package session_test

import (
	"testing"

	"github.com/tailored-agentic-units/evalkernel/session"
)

func TestDefaultConfig(t *testing.T) {
	cfg := session.DefaultConfig()

	if cfg.Username != "kernel" {
		t.Errorf("Username = %q, want %q", cfg.Username, "kernel")
	}
	if cfg.ID != "" {
		t.Errorf("ID = %q, want empty", cfg.ID)
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.Merge(&session.Config{Username: "bob"})

	if cfg.Username != "bob" {
		t.Errorf("Username = %q, want %q", cfg.Username, "bob")
	}

	cfg.Merge(&session.Config{})
	if cfg.Username != "bob" {
		t.Errorf("empty merge overwrote Username: %q", cfg.Username)
	}
}

func TestNew_FromConfig(t *testing.T) {
	cfg := session.Config{ID: "fixed-id", Username: "kernel"}

	s, err := session.New(&cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.ID() != "fixed-id" {
		t.Errorf("ID() = %q, want %q", s.ID(), "fixed-id")
	}

	generated, err := session.New(&session.Config{Username: "kernel"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if generated.ID() == "" {
		t.Error("generated session ID is empty")
	}
}
