package shopify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atelierops/fulfillment/pkg/shipping"
)

// MockAPIClient is an in-memory implementation of APIClient for testing.
// Fulfillment orders, fulfillments and tags are kept per order so that
// creating a fulfillment closes its fulfillment order like Shopify does.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnListFulfillmentOrders func(ctx context.Context, orderID string) ([]FulfillmentOrder, error)
	OnListFulfillments      func(ctx context.Context, orderID string) ([]Fulfillment, error)
	OnCreateFulfillment     func(ctx context.Context, req *FulfillmentInput) (*Fulfillment, error)
	OnCancelFulfillment     func(ctx context.Context, fulfillmentID string) (*Fulfillment, error)
	OnGetOrder              func(ctx context.Context, orderID string) (*Order, error)
	OnGetOrderTags          func(ctx context.Context, orderID string) (string, error)
	OnUpdateOrderTags       func(ctx context.Context, orderID string, tags string) error

	mu                sync.Mutex
	orders            map[string]Order
	fulfillmentOrders map[string][]FulfillmentOrder
	fulfillments      map[string][]Fulfillment
	tags              map[string]string
	nextID            int

	CreatedFulfillments []FulfillmentInput
	CancelledIDs        []string
	TagWrites           int
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{
		orders:            make(map[string]Order),
		fulfillmentOrders: make(map[string][]FulfillmentOrder),
		fulfillments:      make(map[string][]Fulfillment),
		tags:              make(map[string]string),
		nextID:            5000,
	}
}

// SeedOrder registers an order. Its tags become the order's tag string.
func (m *MockAPIClient) SeedOrder(order Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[string(order.ID)] = order
	m.tags[string(order.ID)] = order.Tags
}

// SeedFulfillmentOrder registers a fulfillment order for an order.
func (m *MockAPIClient) SeedFulfillmentOrder(orderID, fulfillmentOrderID string, status shipping.FulfillmentOrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fulfillmentOrders[orderID] = append(m.fulfillmentOrders[orderID], FulfillmentOrder{
		ID:      ID(fulfillmentOrderID),
		OrderID: ID(orderID),
		Status:  string(status),
	})
}

// SeedFulfillment registers an existing fulfillment for an order.
func (m *MockAPIClient) SeedFulfillment(orderID, fulfillmentID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fulfillments[orderID] = append(m.fulfillments[orderID], Fulfillment{
		ID:        ID(fulfillmentID),
		OrderID:   ID(orderID),
		Status:    status,
		CreatedAt: time.Now(),
	})
}

// SeedTags sets the raw tag string of an order.
func (m *MockAPIClient) SeedTags(orderID, tags string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[orderID] = tags
}

// Tags returns the current raw tag string of an order.
func (m *MockAPIClient) Tags(orderID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags[orderID]
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return shipping.NewUpstreamError(platformName, "MOCK_ERROR", "Simulated API error").WithStatusCode(500)
	}
	return nil
}

// ListFulfillmentOrders returns the seeded fulfillment orders. Orders never
// seeded get a single open fulfillment order.
func (m *MockAPIClient) ListFulfillmentOrders(ctx context.Context, orderID string) ([]FulfillmentOrder, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListFulfillmentOrders != nil {
		return m.OnListFulfillmentOrders(ctx, orderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fulfillmentOrders[orderID]; !ok {
		m.fulfillmentOrders[orderID] = []FulfillmentOrder{{
			ID:      ID(orderID + "01"),
			OrderID: ID(orderID),
			Status:  string(shipping.FulfillmentOrderOpen),
		}}
	}
	return append([]FulfillmentOrder(nil), m.fulfillmentOrders[orderID]...), nil
}

// ListFulfillments returns the fulfillments of an order.
func (m *MockAPIClient) ListFulfillments(ctx context.Context, orderID string) ([]Fulfillment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnListFulfillments != nil {
		return m.OnListFulfillments(ctx, orderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Fulfillment(nil), m.fulfillments[orderID]...), nil
}

// CreateFulfillment records a fulfillment and closes its fulfillment order.
func (m *MockAPIClient) CreateFulfillment(ctx context.Context, req *FulfillmentInput) (*Fulfillment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.CreatedFulfillments = append(m.CreatedFulfillments, *req)
	m.mu.Unlock()

	if m.OnCreateFulfillment != nil {
		return m.OnCreateFulfillment(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	orderID := ""
	for oid, fos := range m.fulfillmentOrders {
		for i := range fos {
			if string(fos[i].ID) == req.FulfillmentOrderID {
				orderID = oid
				fos[i].Status = string(shipping.FulfillmentOrderClosed)
			}
		}
	}

	m.nextID++
	f := Fulfillment{
		ID:        ID(fmt.Sprintf("%d", m.nextID)),
		OrderID:   ID(orderID),
		Status:    "success",
		CreatedAt: time.Now(),
	}
	if req.Tracking != nil {
		f.TrackingNumber = req.Tracking.Number
		f.TrackingCompany = req.Tracking.Company
	}
	if orderID != "" {
		m.fulfillments[orderID] = append(m.fulfillments[orderID], f)
	}
	return &f, nil
}

// CancelFulfillment marks a fulfillment cancelled.
func (m *MockAPIClient) CancelFulfillment(ctx context.Context, fulfillmentID string) (*Fulfillment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCancelFulfillment != nil {
		return m.OnCancelFulfillment(ctx, fulfillmentID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelledIDs = append(m.CancelledIDs, fulfillmentID)
	for _, fs := range m.fulfillments {
		for i := range fs {
			if string(fs[i].ID) == fulfillmentID {
				fs[i].Status = "cancelled"
				f := fs[i]
				return &f, nil
			}
		}
	}
	return &Fulfillment{ID: ID(fulfillmentID), Status: "cancelled"}, nil
}

// GetOrder returns a seeded order, or a 404 like Shopify for unknown ids.
func (m *MockAPIClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetOrder != nil {
		return m.OnGetOrder(ctx, orderID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, shipping.NewUpstreamError(platformName, "HTTP_404", "Not Found").WithStatusCode(404)
	}
	o.Tags = m.tags[orderID]
	return &o, nil
}

// GetOrderTags returns the tag string of an order.
func (m *MockAPIClient) GetOrderTags(ctx context.Context, orderID string) (string, error) {
	if err := m.simulate(); err != nil {
		return "", err
	}
	if m.OnGetOrderTags != nil {
		return m.OnGetOrderTags(ctx, orderID)
	}
	return m.Tags(orderID), nil
}

// UpdateOrderTags replaces the tag string of an order.
func (m *MockAPIClient) UpdateOrderTags(ctx context.Context, orderID string, tags string) error {
	if err := m.simulate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.TagWrites++
	m.mu.Unlock()

	if m.OnUpdateOrderTags != nil {
		return m.OnUpdateOrderTags(ctx, orderID, tags)
	}

	m.SeedTags(orderID, strings.TrimSpace(tags))
	return nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
