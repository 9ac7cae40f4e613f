// Package agents fetches raw output from the upstream research agents
// (clinical, patent, market, literature) over HTTP. All network I/O lives
// here, strictly upstream of normalization; the core pipeline never blocks
// on the network.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/pharmasignal/evigraph/pkg/types"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 2.0
	defaultBurst     = 5

	// maxResponseBytes bounds one agent response body (8 MiB).
	maxResponseBytes = 8 << 20
)

// Client queries one upstream research agent with a per-endpoint rate limit
// and circuit breaker.
type Client struct {
	endpoint EndpointConfig
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *Breaker
}

// NewClient creates a client for one configured endpoint.
func NewClient(endpoint EndpointConfig) *Client {
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := endpoint.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := endpoint.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(limit), burst),
		breaker:  NewBreaker(string(endpoint.AgentID), DefaultBreakerConfig()),
	}
}

// AgentID reports which agent class this client queries.
func (c *Client) AgentID() types.SourceType {
	return c.endpoint.AgentID
}

// Fetch queries the agent for the given research query and returns its raw
// output object, ready for normalization. Blocks on the rate limiter, then
// runs the request through the circuit breaker.
func (c *Client) Fetch(ctx context.Context, query string) (map[string]interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("agents: rate limit wait: %w", err)
	}

	result, err := c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return c.fetch(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]interface{}), nil
}

func (c *Client) fetch(ctx context.Context, query string) (map[string]interface{}, error) {
	u, err := url.Parse(c.endpoint.URL)
	if err != nil {
		return nil, fmt.Errorf("agents: parse endpoint url: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("agents: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agents: fetch from %s: %w", c.endpoint.AgentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agents: %s returned status %d", c.endpoint.AgentID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("agents: read response: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("agents: decode %s response: %w", c.endpoint.AgentID, err)
	}
	if raw["agent_name"] == nil && c.endpoint.Name != "" {
		raw["agent_name"] = c.endpoint.Name
	}
	return raw, nil
}

// Roster holds one client per configured agent class.
type Roster struct {
	clients map[types.SourceType]*Client
}

// NewRoster builds clients for every endpoint in the config.
func NewRoster(cfg *Config) *Roster {
	clients := make(map[types.SourceType]*Client, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		clients[ep.AgentID] = NewClient(ep)
	}
	return &Roster{clients: clients}
}

// Client returns the client for one agent class.
func (r *Roster) Client(agentID types.SourceType) (*Client, bool) {
	c, ok := r.clients[agentID]
	return c, ok
}
