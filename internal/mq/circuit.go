package mq

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig controls when a broker connection's circuit opens.
type CircuitBreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
	MaxRequests uint32
}

// DefaultCircuitBreakerConfig opens after 3 consecutive failed connect
// attempts (sends do not run through the breaker) and allows one trial
// request after a 30-second cooldown, short
// enough that a flapping broker doesn't stall uplink delivery for long.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
	}
}

// CircuitBreaker wraps gobreaker for one host_uri's connection.
type CircuitBreaker struct {
	cb      *gobreaker.CircuitBreaker[any]
	hostURI string
}

// NewCircuitBreaker creates a circuit breaker scoped to hostURI.
func NewCircuitBreaker(hostURI string, cfg CircuitBreakerConfig, onStateChange func(hostURI string, from, to gobreaker.State)) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("mq-%s", hostURI),
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if onStateChange != nil {
				onStateChange(hostURI, from, to)
			}
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[any](settings), hostURI: hostURI}
}

// Execute runs fn under circuit-breaker protection.
func (c *CircuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return c.cb.Execute(fn)
}

// IsOpen reports whether the circuit is currently open (rejecting calls).
func (c *CircuitBreaker) IsOpen() bool { return c.cb.State() == gobreaker.StateOpen }
