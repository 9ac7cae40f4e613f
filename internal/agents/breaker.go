package agents

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// requests to prevent hammering an unhealthy agent endpoint.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the circuit breaker settings for one agent endpoint.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before half-open probing.
	Timeout time.Duration

	// HalfOpenMaxSuccesses closes the circuit again after this many
	// consecutive successes in half-open state.
	HalfOpenMaxSuccesses uint32
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}
}

// Breaker wraps gobreaker around calls to one upstream research agent.
type Breaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker creates a circuit breaker named after the agent it protects.
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.MaxFailures == 0 {
		config = DefaultBreakerConfig()
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("agent %s circuit breaker: %s -> %s", name, from, to)
		},
	}
	return &Breaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. When the circuit is open the call is
// rejected with ErrCircuitOpen without invoking fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}

// State reports the current breaker state for health reporting.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}
