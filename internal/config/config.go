// Package config provides configuration management for evigraph.
// It loads settings from environment variables with the EVIGRAPH_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration settings for the evigraph service.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Agents   AgentsConfig
	Security SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 8480)
	Host string // Server host (default: 0.0.0.0)
}

// StorageConfig contains graph store configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine: memory, sqlite, postgres (default: memory)
	DataPath      string // Path to data directory for sqlite (default: ./data)
	PostgresURL   string // Connection string for the postgres engine
}

// AgentsConfig points at the upstream agent roster.
type AgentsConfig struct {
	ConfigPath string // Path to the agents YAML roster (default: ./agents.yaml)
}

// SecurityConfig contains authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("EVIGRAPH_PORT", 8480),
			Host: getEnv("EVIGRAPH_HOST", "0.0.0.0"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("EVIGRAPH_STORAGE_ENGINE", "memory"),
			DataPath:      getEnv("EVIGRAPH_DATA_PATH", "./data"),
			PostgresURL:   getEnv("EVIGRAPH_POSTGRES_URL", ""),
		},
		Agents: AgentsConfig{
			ConfigPath: getEnv("EVIGRAPH_AGENTS_CONFIG", "./agents.yaml"),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("EVIGRAPH_SECURITY_MODE", "development"),
			APIToken:     getEnv("EVIGRAPH_API_TOKEN", ""),
		},
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Storage.StorageEngine {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("EVIGRAPH_POSTGRES_URL is required for the postgres engine")
		}
	default:
		return fmt.Errorf("unknown storage engine: %q", c.Storage.StorageEngine)
	}
	if c.Security.SecurityMode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("EVIGRAPH_API_TOKEN is required in production mode")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
