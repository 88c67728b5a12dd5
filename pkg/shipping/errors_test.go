package shipping_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/stretchr/testify/assert"
)

func TestShippingError_Error(t *testing.T) {
	err := shipping.NewValidationError("aggregator", "INVALID_ADDRESS", "Invalid postal code")
	assert.Equal(t, "aggregator validation error (INVALID_ADDRESS): Invalid postal code", err.Error())
}

func TestShippingError_ErrorWithCause(t *testing.T) {
	cause := errors.New("network timeout")
	err := shipping.NewUpstreamError("aggregator", "API_ERROR", "API call failed").WithCause(cause)
	assert.Contains(t, err.Error(), "API call failed")
	assert.Contains(t, err.Error(), "network timeout")
}

func TestShippingError_Unwrap(t *testing.T) {
	cause := errors.New("network timeout")
	err := shipping.NewUpstreamError("shopify", "API_ERROR", "API call failed").WithCause(cause)
	assert.True(t, errors.Is(err, cause))
}

func TestShippingError_Is(t *testing.T) {
	err1 := shipping.NewValidationError("orchestrator", "LABEL_ALREADY_CANCELLED", "first")
	wrapped := fmt.Errorf("cancel label: %w", err1)

	// Same code should match, regardless of message
	assert.True(t, errors.Is(wrapped, shipping.ErrLabelAlreadyCancelled))
	assert.False(t, errors.Is(wrapped, shipping.ErrManualLabel))
}

func TestShippingError_Builders(t *testing.T) {
	err := shipping.NewUpstreamError("shopify", "HTTP_401", "Unauthorized").
		WithStatusCode(401).
		WithBody(`{"errors":"[API] Invalid API key"}`).
		WithRetryable(false)

	assert.Equal(t, 401, err.StatusCode)
	assert.Contains(t, err.Body, "Invalid API key")
	assert.False(t, err.Retryable)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, shipping.KindConfiguration, shipping.KindOf(shipping.NewConfigurationError("aggregator", "missing key")))
	assert.Equal(t, shipping.KindNotFound, shipping.KindOf(fmt.Errorf("x: %w", shipping.ErrOrderNotFound)))
	assert.Equal(t, shipping.ErrorKind(""), shipping.KindOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, shipping.IsRetryable(shipping.NewUpstreamError("aggregator", "NETWORK", "timeout").WithRetryable(true)))
	assert.False(t, shipping.IsRetryable(shipping.NewConfigurationError("aggregator", "missing key")))
	assert.True(t, shipping.IsRetryable(fmt.Errorf("wrapped: %w", shipping.ErrServiceUnavailable)))
	assert.False(t, shipping.IsRetryable(errors.New("some other error")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", shipping.NewConfigurationError("shopify", "missing token"), http.StatusInternalServerError},
		{"validation", shipping.ErrManualLabel, http.StatusUnprocessableEntity},
		{"not found", shipping.ErrLabelNotFound, http.StatusNotFound},
		{"conflict", shipping.ErrLabelConflict, http.StatusConflict},
		{"upstream", shipping.NewUpstreamError("aggregator", "HTTP_400", "bad"), http.StatusBadGateway},
		{"circuit open", shipping.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shipping.HTTPStatus(tt.err))
		})
	}
}
