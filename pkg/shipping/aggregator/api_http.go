package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atelierops/fulfillment/internal/resilience"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

const maxBodyBytes = 1 << 20

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker resilience.CircuitBreakerConfig
	Logger  *otelzap.Logger
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = resilience.DefaultCircuitBreakerConfig(carrierAPIName)
	}

	return &HTTPAPIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: resilience.NewCircuitBreaker(breakerCfg, cfg.Logger, resilience.NotUpstreamFailure),
	}
}

// GenerateLabel creates a label via the aggregator API.
// A 200 response carrying an error envelope is a failure.
func (c *HTTPAPIClient) GenerateLabel(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	status, body, err := c.call(ctx, "/ship/generate", req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, c.parseError(status, body)
	}

	var result GenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, shipping.NewUpstreamError(carrierAPIName, "DECODE_ERROR", "failed to decode generate response").
			WithCause(err).WithStatusCode(status).WithBody(string(body))
	}
	result.Raw = json.RawMessage(body)

	if result.Error != nil || strings.EqualFold(result.Meta, "error") {
		return nil, c.envelopeError(status, result.Error, body)
	}
	if len(result.Data) == 0 || result.Data[0].TrackingNumber == "" {
		return nil, shipping.NewUpstreamError(carrierAPIName, "EMPTY_RESPONSE", "carrier returned no label").
			WithStatusCode(status).WithBody(string(body))
	}
	return &result, nil
}

// CancelLabel cancels a label via the aggregator API.
func (c *HTTPAPIClient) CancelLabel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	status, body, err := c.call(ctx, "/ship/cancel", req)
	if err != nil {
		return nil, err
	}

	var result CancelResponse
	// Some providers answer with an empty or non-JSON body; the status decides then.
	_ = json.Unmarshal(body, &result)
	result.StatusCode = status
	result.Raw = rawOrString(body)

	if !result.Succeeded() {
		if result.Error != nil {
			return nil, c.envelopeError(status, result.Error, body)
		}
		return nil, c.parseError(status, body)
	}
	return &result, nil
}

type rawResponse struct {
	status int
	body   []byte
}

// call posts to the aggregator through the circuit breaker. Only transport
// failures and 5xx answers count against the breaker; rejections carried in
// a response body are classified by the caller, outside it.
func (c *HTTPAPIClient) call(ctx context.Context, path string, req interface{}) (int, []byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		status, body, err := c.doRequest(ctx, http.MethodPost, path, req)
		if err != nil {
			return nil, err
		}
		if status >= http.StatusInternalServerError {
			return nil, c.parseError(status, body)
		}
		return rawResponse{status: status, body: body}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	resp := out.(rawResponse)
	return resp.status, resp.body, nil
}

// doRequest performs an HTTP request with proper headers and authentication
// and returns the status and the (bounded) body.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "atelierops-fulfillment/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, shipping.NewUpstreamError(carrierAPIName, "NETWORK_ERROR", "carrier request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, shipping.NewUpstreamError(carrierAPIName, "NETWORK_ERROR", "failed to read carrier response").
			WithCause(err).WithStatusCode(resp.StatusCode).WithRetryable(true)
	}
	return resp.StatusCode, respBody, nil
}

// parseError extracts error information from a non-successful response.
func (c *HTTPAPIClient) parseError(status int, body []byte) error {
	var envelope struct {
		Error   *EnvelopeError `json:"error"`
		Message string         `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error != nil {
			return c.envelopeError(status, envelope.Error, body)
		}
		if envelope.Message != "" {
			return httpError(status, envelope.Message, body)
		}
	}
	return httpError(status, http.StatusText(status), body)
}

// envelopeError converts a carrier-level error envelope into a ShippingError.
func (c *HTTPAPIClient) envelopeError(status int, e *EnvelopeError, body []byte) error {
	msg := e.Text()
	if msg == "" {
		msg = "carrier rejected the request"
	}
	code := "CARRIER_REJECTED"
	if e != nil && e.Code != "" {
		code = "CARRIER_" + string(e.Code)
	}
	return shipping.NewUpstreamError(carrierAPIName, code, msg).
		WithStatusCode(status).
		WithBody(string(body)).
		WithRetryable(status >= 500)
}

func httpError(status int, msg string, body []byte) error {
	return shipping.NewUpstreamError(carrierAPIName, fmt.Sprintf("HTTP_%d", status), msg).
		WithStatusCode(status).
		WithBody(string(body)).
		WithRetryable(status >= 500 || status == http.StatusTooManyRequests)
}

func rawOrString(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return json.RawMessage(quoted)
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
