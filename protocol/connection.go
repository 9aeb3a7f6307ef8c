package protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConnectionInfo is what a frontend needs to reach a running kernel. It is
// written to the connection file when the kernel starts.
type ConnectionInfo struct {
	IP        string `json:"ip"`
	ShellPort int    `json:"shell_port"`
	IOPubPort int    `json:"iopub_port"`
	StdinPort int    `json:"stdin_port"`
	HBPort    int    `json:"hb_port"`
	Session   string `json:"session"`
}

// WriteConnectionFile replaces path with info. Readers see either the old or
// the new file, never a partial one.
func WriteConnectionFile(path string, info ConnectionInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode connection file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write connection file %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write connection file %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write connection file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write connection file %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write connection file %s: %w", path, err)
	}
	return nil
}

// ReadConnectionFile loads a connection file written by WriteConnectionFile.
func ReadConnectionFile(path string) (ConnectionInfo, error) {
	var info ConnectionInfo

	data, err := os.ReadFile(path)
	if err != nil {
		return info, fmt.Errorf("read connection file: %w", err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("parse connection file %s: %w", path, err)
	}
	return info, nil
}
