// Package resilience wraps outbound calls to the carrier and the platform in
// circuit breakers so a failing upstream is not hammered by every request.
package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/sony/gobreaker"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	DefaultMaxRequests           uint32  = 3
	DefaultInterval                      = 60 * time.Second
	DefaultTimeout                       = 30 * time.Second
	DefaultFailureThreshold      uint32  = 5
	DefaultFailureRatioThreshold float64 = 0.6
	DefaultMinRequestsToTrip     uint32  = 10
)

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // requests allowed in half-open state
	Interval              time.Duration // cyclic period for clearing counts (0 = never)
	Timeout               time.Duration // open -> half-open delay
	FailureThreshold      uint32        // consecutive failures that trip the circuit
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

// DefaultCircuitBreakerConfig returns the defaults used for upstream APIs.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                  name,
		MaxRequests:           DefaultMaxRequests,
		Interval:              DefaultInterval,
		Timeout:               DefaultTimeout,
		FailureThreshold:      DefaultFailureThreshold,
		FailureRatioThreshold: DefaultFailureRatioThreshold,
		MinRequestsToTrip:     DefaultMinRequestsToTrip,
	}
}

// CircuitBreaker wraps gobreaker with logging.
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *otelzap.Logger
}

// NewCircuitBreaker creates a new circuit breaker. Errors for which
// isSuccessful returns true (e.g. validation rejections) do not count as
// failures; pass nil to count every error.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger *otelzap.Logger, isSuccessful func(error) bool) *CircuitBreaker {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if cfg.MinRequestsToTrip > 0 && counts.Requests >= cfg.MinRequestsToTrip {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	if isSuccessful != nil {
		settings.IsSuccessful = isSuccessful
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		name:   cfg.Name,
		logger: logger,
	}
}

// Execute runs fn through the circuit breaker. When the circuit is open the
// returned error wraps shipping.ErrServiceUnavailable.
func (c *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.cb.Execute(fn)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Circuit breaker rejected call", zap.String("name", c.name), zap.Error(err))
		return nil, fmt.Errorf("%w: circuit breaker %s: %v", shipping.ErrServiceUnavailable, c.name, err)
	}

	return result, err
}

// State returns the current state of the circuit breaker.
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the circuit breaker name.
func (c *CircuitBreaker) Name() string {
	return c.name
}

// NotUpstreamFailure treats caller-side rejections as breaker successes: a
// 4xx, or an error envelope delivered with a 2xx, says nothing about the
// upstream's availability.
func NotUpstreamFailure(err error) bool {
	if err == nil {
		return true
	}
	var shippingErr *shipping.ShippingError
	if errors.As(err, &shippingErr) {
		return shippingErr.StatusCode >= 200 && shippingErr.StatusCode < 500
	}
	return false
}
