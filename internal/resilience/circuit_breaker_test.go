package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/atelierops/fulfillment/internal/resilience"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Minute
	return cfg
}

func TestCircuitBreaker_PassesResult(t *testing.T) {
	cb := resilience.NewCircuitBreaker(testConfig(), nil, nil)

	v, err := cb.Execute(func() (interface{}, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := resilience.NewCircuitBreaker(testConfig(), nil, nil)
	boom := errors.New("connection refused")

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}

	_, err := cb.Execute(func() (interface{}, error) { return "never", nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, shipping.ErrServiceUnavailable)
	assert.True(t, shipping.IsRetryable(err))
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	cb := resilience.NewCircuitBreaker(testConfig(), nil, resilience.NotUpstreamFailure)
	rejected := shipping.NewValidationError("aggregator", "HTTP_400", "bad address").WithStatusCode(400)

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, rejected })
		assert.ErrorIs(t, err, rejected)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestNotUpstreamFailure(t *testing.T) {
	assert.True(t, resilience.NotUpstreamFailure(nil))
	assert.True(t, resilience.NotUpstreamFailure(shipping.NewUpstreamError("shopify", "HTTP_422", "x").WithStatusCode(422)))
	assert.True(t, resilience.NotUpstreamFailure(shipping.NewUpstreamError("aggregator", "CARRIER_1125", "x").WithStatusCode(200)))
	assert.False(t, resilience.NotUpstreamFailure(shipping.NewUpstreamError("shopify", "HTTP_503", "x").WithStatusCode(503)))
	assert.False(t, resilience.NotUpstreamFailure(shipping.NewUpstreamError("shopify", "NETWORK_ERROR", "x").WithRetryable(true)))
	assert.False(t, resilience.NotUpstreamFailure(errors.New("dial tcp: timeout")))
}
