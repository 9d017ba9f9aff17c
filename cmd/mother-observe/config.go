// ABOUTME: Configuration loading for the mother-observe CLI
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway GatewayConfig `toml:"gateway"`
	Display DisplayConfig `toml:"display"`
	Logging LoggingConfig `toml:"logging"`
}

type GatewayConfig struct {
	URL string `toml:"url"`
}

type DisplayConfig struct {
	// Debug shows traffic from private conversations. Off by default.
	Debug bool `toml:"debug"`
	// Timestamps prefixes each printed event with its wire timestamp.
	Timestamps bool `toml:"timestamps"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	u, err := url.Parse(c.Gateway.URL)
	if err != nil {
		return fmt.Errorf("gateway.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway.url must use ws, wss, http, or https scheme")
	}
	return nil
}

// WebsocketURL returns the gateway's /ws endpoint derived from the
// configured URL.
func (c *Config) WebsocketURL() string {
	u := strings.TrimSuffix(c.Gateway.URL, "/")
	u = strings.Replace(u, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	if !strings.HasSuffix(u, "/ws") {
		u += "/ws"
	}
	return u
}
