package agents

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pharmasignal/evigraph/pkg/types"
)

// EndpointConfig describes one upstream research agent endpoint.
type EndpointConfig struct {
	// AgentID is the agent class this endpoint serves.
	AgentID types.SourceType `yaml:"agent_id"`

	// Name is the agent_name attached to evidence it produces.
	Name string `yaml:"name"`

	// URL is the HTTP endpoint queried for raw output.
	URL string `yaml:"url"`

	// Timeout bounds one fetch. Zero means the client default.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is the sustained requests-per-second budget. Zero means
	// the client default.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the rate limiter burst size. Zero means the client default.
	Burst int `yaml:"burst"`
}

// Config is the full upstream agent roster loaded from YAML.
type Config struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// LoadConfig reads and validates an agent roster file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agents: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML agent configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("agents: parse config: %w", err)
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("agents: config has no endpoints")
	}
	for i, ep := range cfg.Endpoints {
		if !types.IsValidSourceType(ep.AgentID) {
			return nil, fmt.Errorf("agents: endpoint %d: unknown agent_id %q", i, ep.AgentID)
		}
		if ep.URL == "" {
			return nil, fmt.Errorf("agents: endpoint %d (%s): url is required", i, ep.AgentID)
		}
	}
	return &cfg, nil
}

// Endpoint returns the configuration for one agent class.
func (c *Config) Endpoint(agentID types.SourceType) (EndpointConfig, bool) {
	for _, ep := range c.Endpoints {
		if ep.AgentID == agentID {
			return ep, true
		}
	}
	return EndpointConfig{}, false
}
