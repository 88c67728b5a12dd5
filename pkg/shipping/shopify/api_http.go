package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/atelierops/fulfillment/internal/resilience"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
)

const maxBodyBytes = 1 << 20

// fulfillmentCreateMutation creates a fulfillment for one fulfillment order.
var fulfillmentCreateMutation = mustLoadMutation("fulfillmentCreate", `
mutation FulfillmentCreate($fulfillment: FulfillmentInput!, $message: String) {
  fulfillmentCreate(fulfillment: $fulfillment, message: $message) {
    fulfillment {
      id
      status
      createdAt
      trackingInfo(first: 1) {
        number
        company
      }
    }
    userErrors {
      field
      message
    }
  }
}`)

// HTTPAPIClient is the production implementation of APIClient using the
// Admin REST API, and GraphQL for fulfillment creation when enabled.
type HTTPAPIClient struct {
	baseURL     string
	accessToken string
	useGraphQL  bool
	httpClient  *http.Client
	breaker     *resilience.CircuitBreaker
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	ShopDomain  string
	APIVersion  string
	AccessToken string
	UseGraphQL  bool
	Timeout     time.Duration
	// BaseURL overrides https://{shop}/admin/api/{version}.
	BaseURL string
	Breaker resilience.CircuitBreakerConfig
	Logger  *otelzap.Logger
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		version := cfg.APIVersion
		if version == "" {
			version = DefaultAPIVersion
		}
		baseURL = fmt.Sprintf("https://%s/admin/api/%s", strings.TrimSuffix(cfg.ShopDomain, "/"), version)
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = resilience.DefaultCircuitBreakerConfig(platformName)
	}

	return &HTTPAPIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: cfg.AccessToken,
		useGraphQL:  cfg.UseGraphQL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: resilience.NewCircuitBreaker(breakerCfg, cfg.Logger, resilience.NotUpstreamFailure),
	}
}

// ListFulfillmentOrders returns the fulfillment orders of an order.
func (c *HTTPAPIClient) ListFulfillmentOrders(ctx context.Context, orderID string) ([]FulfillmentOrder, error) {
	var result struct {
		FulfillmentOrders []FulfillmentOrder `json:"fulfillment_orders"`
	}
	path := "/orders/" + url.PathEscape(orderID) + "/fulfillment_orders.json"
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.FulfillmentOrders, nil
}

// ListFulfillments returns the fulfillments of an order, cancelled ones included.
func (c *HTTPAPIClient) ListFulfillments(ctx context.Context, orderID string) ([]Fulfillment, error) {
	var result struct {
		Fulfillments []Fulfillment `json:"fulfillments"`
	}
	path := "/orders/" + url.PathEscape(orderID) + "/fulfillments.json"
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Fulfillments, nil
}

// CreateFulfillment fulfills a fulfillment order.
func (c *HTTPAPIClient) CreateFulfillment(ctx context.Context, req *FulfillmentInput) (*Fulfillment, error) {
	if c.useGraphQL {
		return c.createFulfillmentGraphQL(ctx, req)
	}

	type lineItemsByFulfillmentOrder struct {
		FulfillmentOrderID ID `json:"fulfillment_order_id"`
	}
	body := map[string]interface{}{
		"fulfillment": map[string]interface{}{
			"line_items_by_fulfillment_order": []lineItemsByFulfillmentOrder{
				{FulfillmentOrderID: ID(req.FulfillmentOrderID)},
			},
			"notify_customer": req.NotifyCustomer,
		},
	}
	fulfillment := body["fulfillment"].(map[string]interface{})
	if req.Tracking != nil {
		fulfillment["tracking_info"] = req.Tracking
	}
	if req.Message != "" {
		fulfillment["message"] = req.Message
	}

	var result struct {
		Fulfillment Fulfillment `json:"fulfillment"`
	}
	if err := c.call(ctx, http.MethodPost, "/fulfillments.json", body, &result); err != nil {
		return nil, err
	}
	return &result.Fulfillment, nil
}

func (c *HTTPAPIClient) createFulfillmentGraphQL(ctx context.Context, req *FulfillmentInput) (*Fulfillment, error) {
	input := map[string]interface{}{
		"notifyCustomer": req.NotifyCustomer,
		"lineItemsByFulfillmentOrder": []map[string]interface{}{
			{"fulfillmentOrderId": toGID("FulfillmentOrder", req.FulfillmentOrderID)},
		},
	}
	if req.Tracking != nil {
		input["trackingInfo"] = req.Tracking
	}
	vars := map[string]interface{}{"fulfillment": input}
	if req.Message != "" {
		vars["message"] = req.Message
	}
	variables, err := fulfillmentCreateMutation.variables(vars)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data struct {
			FulfillmentCreate struct {
				Fulfillment *struct {
					ID           ID        `json:"id"`
					Status       string    `json:"status"`
					CreatedAt    time.Time `json:"createdAt"`
					TrackingInfo []struct {
						Number  string `json:"number"`
						Company string `json:"company"`
					} `json:"trackingInfo"`
				} `json:"fulfillment"`
				UserErrors []UserError `json:"userErrors"`
			} `json:"fulfillmentCreate"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}

	payload := map[string]interface{}{
		"query":     fulfillmentCreateMutation.query,
		"variables": variables,
	}
	var status int
	var raw []byte
	_, err = c.breaker.Execute(func() (interface{}, error) {
		var err error
		status, raw, err = c.do(ctx, http.MethodPost, "/graphql.json", payload)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, parseError(status, raw)
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, decodeError(status, raw, err)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Errors) > 0 {
		return nil, shipping.NewUpstreamError(platformName, "GRAPHQL_ERROR", result.Errors[0].Message).
			WithStatusCode(status).WithBody(string(raw))
	}
	created := result.Data.FulfillmentCreate
	if len(created.UserErrors) > 0 {
		msgs := make([]string, 0, len(created.UserErrors))
		for _, ue := range created.UserErrors {
			msgs = append(msgs, ue.Message)
		}
		return nil, shipping.NewUpstreamError(platformName, "USER_ERRORS", strings.Join(msgs, "; ")).
			WithStatusCode(status).WithBody(string(raw))
	}
	if created.Fulfillment == nil {
		return nil, shipping.NewUpstreamError(platformName, "EMPTY_RESPONSE", "fulfillmentCreate returned no fulfillment").
			WithStatusCode(status).WithBody(string(raw))
	}

	f := &Fulfillment{
		ID:        created.Fulfillment.ID,
		Status:    strings.ToLower(created.Fulfillment.Status),
		CreatedAt: created.Fulfillment.CreatedAt,
	}
	if len(created.Fulfillment.TrackingInfo) > 0 {
		f.TrackingNumber = created.Fulfillment.TrackingInfo[0].Number
		f.TrackingCompany = created.Fulfillment.TrackingInfo[0].Company
	}
	return f, nil
}

// CancelFulfillment cancels one fulfillment.
func (c *HTTPAPIClient) CancelFulfillment(ctx context.Context, fulfillmentID string) (*Fulfillment, error) {
	var result struct {
		Fulfillment Fulfillment `json:"fulfillment"`
	}
	path := "/fulfillments/" + url.PathEscape(fulfillmentID) + "/cancel.json"
	if err := c.call(ctx, http.MethodPost, path, map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	return &result.Fulfillment, nil
}

// GetOrder returns an order with its shipping address.
func (c *HTTPAPIClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var result struct {
		Order Order `json:"order"`
	}
	path := "/orders/" + url.PathEscape(orderID) + ".json?fields=" + orderFields
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result.Order, nil
}

// GetOrderTags returns the raw comma-separated tag string of an order.
func (c *HTTPAPIClient) GetOrderTags(ctx context.Context, orderID string) (string, error) {
	var result struct {
		Order struct {
			ID   ID     `json:"id"`
			Tags string `json:"tags"`
		} `json:"order"`
	}
	path := "/orders/" + url.PathEscape(orderID) + ".json?fields=id,tags"
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", err
	}
	return result.Order.Tags, nil
}

// UpdateOrderTags replaces the tag string of an order.
func (c *HTTPAPIClient) UpdateOrderTags(ctx context.Context, orderID string, tags string) error {
	body := map[string]interface{}{
		"order": map[string]interface{}{
			"id":   ID(orderID),
			"tags": tags,
		},
	}
	return c.call(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID)+".json", body, nil)
}

// call runs one REST request through the circuit breaker and decodes a 2xx body into out.
func (c *HTTPAPIClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		status, raw, err := c.do(ctx, method, path, body)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, parseError(status, raw)
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return nil, decodeError(status, raw, err)
			}
		}
		return nil, nil
	})
	return err
}

// do performs an HTTP request with proper headers and authentication.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, shipping.NewUpstreamError(platformName, "NETWORK_ERROR", "shopify request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, shipping.NewUpstreamError(platformName, "NETWORK_ERROR", "failed to read shopify response").
			WithCause(err).WithStatusCode(resp.StatusCode).WithRetryable(true)
	}
	return resp.StatusCode, raw, nil
}

// parseError extracts error information from a non-successful response.
// Shopify sends "errors" either as a string or as a field → messages object.
func parseError(status int, body []byte) error {
	msg := http.StatusText(status)

	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		var s string
		var fields map[string][]string
		switch {
		case json.Unmarshal(envelope.Errors, &s) == nil && s != "":
			msg = s
		case json.Unmarshal(envelope.Errors, &fields) == nil && len(fields) > 0:
			parts := make([]string, 0, len(fields))
			for field, msgs := range fields {
				parts = append(parts, field+" "+strings.Join(msgs, ", "))
			}
			sort.Strings(parts)
			msg = strings.Join(parts, "; ")
		}
	}

	return shipping.NewUpstreamError(platformName, fmt.Sprintf("HTTP_%d", status), msg).
		WithStatusCode(status).
		WithBody(string(body)).
		WithRetryable(status >= 500 || status == http.StatusTooManyRequests)
}

func decodeError(status int, body []byte, err error) error {
	return shipping.NewUpstreamError(platformName, "DECODE_ERROR", "failed to decode shopify response").
		WithCause(err).WithStatusCode(status).WithBody(string(body))
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
