package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/internal/orchestrator"
	"github.com/atelierops/fulfillment/internal/server"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// fakeShipments records the last call and returns canned results.
type fakeShipments struct {
	createReq orchestrator.CreateLabelRequest
	cancelReq orchestrator.CancelLabelRequest
	lastCall  string
	userID    string

	createResult *orchestrator.CreateLabelResult
	fulfillment  *orchestrator.FulfillmentResult
	cancelResult *orchestrator.CancelLabelResult
	shipment     *orchestrator.Shipment
	err          error
}

func (f *fakeShipments) CreateLabel(_ context.Context, req orchestrator.CreateLabelRequest) (*orchestrator.CreateLabelResult, error) {
	f.lastCall, f.createReq = "create", req
	return f.createResult, f.err
}

func (f *fakeShipments) ConfirmShipment(_ context.Context, _, orderID, userID string) (*orchestrator.FulfillmentResult, error) {
	f.lastCall, f.userID = "ship:"+orderID, userID
	return f.fulfillment, f.err
}

func (f *fakeShipments) ConfirmPickupReady(_ context.Context, _, orderID, userID string) (*orchestrator.FulfillmentResult, error) {
	f.lastCall, f.userID = "pickup-ready:"+orderID, userID
	return f.fulfillment, f.err
}

func (f *fakeShipments) ConfirmPickupCollected(_ context.Context, _, orderID, userID string) (*orchestrator.FulfillmentResult, error) {
	f.lastCall, f.userID = "pickup-collected:"+orderID, userID
	return f.fulfillment, f.err
}

func (f *fakeShipments) CancelLabel(_ context.Context, req orchestrator.CancelLabelRequest) (*orchestrator.CancelLabelResult, error) {
	f.lastCall, f.cancelReq = "cancel", req
	return f.cancelResult, f.err
}

func (f *fakeShipments) GetShipment(_ context.Context, orgID, orderID string) (*orchestrator.Shipment, error) {
	f.lastCall = "shipment:" + orgID + "/" + orderID
	return f.shipment, f.err
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Kind       string `json:"kind"`
		Code       string `json:"code"`
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
		Body       string `json:"body"`
		Retryable  bool   `json:"retryable"`
	} `json:"error"`
}

func newTestServer(t *testing.T, fake *fakeShipments, cfg server.Config) http.Handler {
	t.Helper()
	return server.New(cfg, fake, otelzap.New(zap.NewNop())).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", "user-7")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestServer_Health(t *testing.T) {
	h := newTestServer(t, &fakeShipments{}, server.Config{
		Checks: map[string]server.HealthCheck{
			"postgres": func(context.Context) error { return nil },
		},
	})

	rec, env := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"postgres":"ok"`)
}

func TestServer_HealthFailingDependency(t *testing.T) {
	h := newTestServer(t, &fakeShipments{}, server.Config{
		Checks: map[string]server.HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
	})

	rec, env := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Data), "connection refused")
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fulfillment_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := newTestServer(t, &fakeShipments{}, server.Config{Gatherer: reg})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fulfillment_test_total 1")
}

func TestServer_CreateLabel(t *testing.T) {
	fake := &fakeShipments{createResult: &orchestrator.CreateLabelResult{
		Label: &models.Label{ID: "lbl-1", TrackingNumber: "ENV-555", Status: models.LabelStatusCreated},
	}}
	h := newTestServer(t, fake, server.Config{})

	rec, env := do(t, h, http.MethodPost, "/v1/orgs/org-1/orders/1001/label",
		`{"carrier":"Coordinadora","weight":2.5,"declaredValue":"80000","content":"Camisetas"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Label created", env.Message)
	assert.Contains(t, string(env.Data), `"trackingNumber":"ENV-555"`)

	assert.Equal(t, "org-1", fake.createReq.OrgID)
	assert.Equal(t, "1001", fake.createReq.OrderID)
	assert.Equal(t, "user-7", fake.createReq.UserID)
	assert.Equal(t, shipping.CarrierCoordinadora, fake.createReq.Carrier)
	assert.Equal(t, 2.5, fake.createReq.Weight)
	assert.True(t, fake.createReq.DeclaredValue.Equal(decimal.NewFromInt(80000)))
}

func TestServer_CreateLabelAlreadyExists(t *testing.T) {
	fake := &fakeShipments{createResult: &orchestrator.CreateLabelResult{
		Label:          &models.Label{ID: "lbl-1"},
		AlreadyExisted: true,
	}}
	h := newTestServer(t, fake, server.Config{})

	rec, env := do(t, h, http.MethodPost, "/v1/orgs/org-1/orders/1001/label", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Label already exists", env.Message)
	assert.Empty(t, fake.createReq.Carrier, "an empty body leaves carrier selection to coverage")
}

func TestServer_CreateLabelRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: `{"carrier":`, code: "INVALID_JSON"},
		{name: "unknown carrier", body: `{"carrier":"pigeon"}`, code: "UNSUPPORTED_CARRIER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeShipments{}
			h := newTestServer(t, fake, server.Config{})

			rec, env := do(t, h, http.MethodPost, "/v1/orgs/org-1/orders/1001/label", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Empty(t, fake.lastCall)
		})
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	upstream := shipping.NewUpstreamError("aggregator", "CARRIER_REJECTED", "guía no generada").
		WithStatusCode(400).
		WithBody(`{"meta":"error"}`)

	tests := []struct {
		name      string
		err       error
		status    int
		kind      string
		code      string
		retryable bool
	}{
		{name: "not found", err: shipping.ErrOrderNotFound, status: http.StatusNotFound, kind: "not_found", code: "ORDER_NOT_FOUND"},
		{name: "validation", err: shipping.ErrNoActiveLabel, status: http.StatusUnprocessableEntity, kind: "validation", code: "NO_ACTIVE_LABEL"},
		{name: "conflict", err: shipping.ErrLabelConflict, status: http.StatusConflict, kind: "conflict", code: "LABEL_CONFLICT"},
		{name: "upstream", err: upstream, status: http.StatusBadGateway, kind: "upstream", code: "CARRIER_REJECTED"},
		{name: "configuration", err: shipping.NewConfigurationError("aggregator", "missing api key"), status: http.StatusInternalServerError, kind: "configuration", code: "MISSING_CONFIGURATION"},
		{name: "breaker open", err: fmt.Errorf("shopify: %w", shipping.ErrServiceUnavailable), status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE", retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeShipments{err: tt.err}, server.Config{})

			rec, env := do(t, h, http.MethodPost, "/v1/orgs/org-1/orders/1001/ship", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.kind, env.Error.Kind)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.retryable, env.Error.Retryable)
		})
	}

	t.Run("upstream body is surfaced", func(t *testing.T) {
		h := newTestServer(t, &fakeShipments{err: upstream}, server.Config{})

		_, env := do(t, h, http.MethodPost, "/v1/orgs/org-1/orders/1001/label", "")
		require.NotNil(t, env.Error)
		assert.Equal(t, 400, env.Error.StatusCode)
		assert.Equal(t, `{"meta":"error"}`, env.Error.Body)
		assert.Equal(t, "guía no generada", env.Message)
	})
}

func TestServer_FulfillmentRoutes(t *testing.T) {
	tests := []struct {
		path     string
		call     string
		message  string
		already  bool
		expected string
	}{
		{path: "/ship", call: "ship:1001", message: "Order shipped"},
		{path: "/pickup-ready", call: "pickup-ready:1001", message: "Order ready for pickup"},
		{path: "/pickup-collected", call: "pickup-collected:1001", message: "Order collected"},
		{path: "/ship", call: "ship:1001", already: true, message: "Order was already fulfilled"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fake := &fakeShipments{fulfillment: &orchestrator.FulfillmentResult{
				OrderID:           "1001",
				OperationalStatus: models.OrderStatusShipped,
				AlreadyFulfilled:  tt.already,
			}}
			h := newTestServer(t, fake, server.Config{})

			rec, env := do(t, h, http.MethodPost, "/v1/orgs/org-1/orders/1001"+tt.path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			assert.Equal(t, tt.call, fake.lastCall)
			assert.Equal(t, "user-7", fake.userID)
		})
	}
}

func TestServer_CancelLabel(t *testing.T) {
	fake := &fakeShipments{cancelResult: &orchestrator.CancelLabelResult{
		Label:                       &models.Label{ID: "lbl-9", Status: models.LabelStatusCancelled},
		ShopifyFulfillmentCancelled: false,
		PendingFulfillmentIDs:       []string{"7002"},
		OperationalStatus:           models.OrderStatusPacking,
	}}
	h := newTestServer(t, fake, server.Config{})

	rec, env := do(t, h, http.MethodPost, "/v1/orgs/org-1/labels/lbl-9/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success, "partial platform reconciliation is still a success")
	assert.Contains(t, env.Message, "manual cancellation")
	assert.Contains(t, string(env.Data), `"pendingFulfillmentIds":["7002"]`)
	assert.Equal(t, orchestrator.CancelLabelRequest{OrgID: "org-1", LabelID: "lbl-9", UserID: "user-7"}, fake.cancelReq)
}

func TestServer_GetShipment(t *testing.T) {
	fake := &fakeShipments{shipment: &orchestrator.Shipment{
		Order:  &models.Order{ID: "1001", OperationalStatus: models.OrderStatusAwaitingPickup},
		Labels: []*models.Label{},
		State:  orchestrator.StatePickupReady,
	}}
	h := newTestServer(t, fake, server.Config{})

	rec, env := do(t, h, http.MethodGet, "/v1/orgs/org-1/orders/1001/shipment", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shipment:org-1/1001", fake.lastCall)
	assert.Contains(t, string(env.Data), `"state":"pickup_ready"`)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakeShipments{}, server.Config{})

	rec, _ := do(t, h, http.MethodGet, "/v1/orgs/org-1/orders/1001/ship", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := server.New(server.Config{Port: 0}, &fakeShipments{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
