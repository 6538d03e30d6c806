// Package mcpclient is the thin boundary StepExecutor talks to for the
// tool-server subprocess. The subprocess's own wire protocol is out of
// scope (spec.md Non-goals) — this package only starts it, lists its
// tools, and forwards calls.
package mcpclient

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServerConfig describes how to launch one MCP tool-server subprocess.
type ServerConfig struct {
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Config is the on-disk shape of an MCP server manifest: {"mcpServers": {...}}.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads and parses an MCP server manifest from disk.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: read config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("mcpclient: parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Server looks up a single server's configuration by name.
func (c *Config) Server(name string) (ServerConfig, error) {
	s, ok := c.MCPServers[name]
	if !ok {
		return ServerConfig{}, fmt.Errorf("mcpclient: server %q not found in config", name)
	}
	return s, nil
}
