// ABOUTME: Configuration loading and parsing for the MOTHER gateway
// ABOUTME: Supports YAML files with environment variable expansion

package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Memory    MemoryConfig    `yaml:"memory"`
	Agents    []AgentConfig   `yaml:"agents"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// BroadcastConfig holds event fan-out tuning
type BroadcastConfig struct {
	// QueueSize is the per-subscriber outbound queue capacity.
	// Zero means the built-in default.
	QueueSize int `yaml:"queue_size"`
}

// MemoryConfig holds context-retrieval tuning
type MemoryConfig struct {
	// ContextLimit is how many prior exchanges are folded into a
	// context-enhanced prompt. Zero means the built-in default.
	ContextLimit int `yaml:"context_limit"`
}

// AgentConfig is one roster entry seeded into the store at startup
type AgentConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Kind    string `yaml:"kind"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Broadcast.QueueSize < 0 {
		return fmt.Errorf("broadcast.queue_size must not be negative")
	}

	if c.Memory.ContextLimit < 0 {
		return fmt.Errorf("memory.context_limit must not be negative")
	}

	for i, agent := range c.Agents {
		if agent.Name == "" {
			return fmt.Errorf("agents[%d].name is required", i)
		}
	}

	return nil
}
