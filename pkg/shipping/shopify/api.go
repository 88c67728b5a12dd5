package shopify

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// APIClient defines the interface for Shopify Admin API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// ListFulfillmentOrders: GET /orders/{id}/fulfillment_orders.json
	ListFulfillmentOrders(ctx context.Context, orderID string) ([]FulfillmentOrder, error)

	// ListFulfillments: GET /orders/{id}/fulfillments.json
	ListFulfillments(ctx context.Context, orderID string) ([]Fulfillment, error)

	// CreateFulfillment: POST /fulfillments.json or the fulfillmentCreate mutation
	CreateFulfillment(ctx context.Context, req *FulfillmentInput) (*Fulfillment, error)

	// CancelFulfillment: POST /fulfillments/{id}/cancel.json
	CancelFulfillment(ctx context.Context, fulfillmentID string) (*Fulfillment, error)

	// GetOrder: GET /orders/{id}.json
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// GetOrderTags: GET /orders/{id}.json?fields=id,tags
	GetOrderTags(ctx context.Context, orderID string) (string, error)

	// UpdateOrderTags: PUT /orders/{id}.json
	UpdateOrderTags(ctx context.Context, orderID string, tags string) error
}

// ============================================================================
// API Request/Response Types
// ============================================================================

// Order is the subset of the REST order resource the orchestrator imports.
type Order struct {
	ID                ID            `json:"id"`
	Name              string        `json:"name"`
	OrderNumber       int64         `json:"order_number"`
	Email             string        `json:"email,omitempty"`
	Phone             string        `json:"phone,omitempty"`
	TotalPrice        string        `json:"total_price"`
	Currency          string        `json:"currency,omitempty"`
	Tags              string        `json:"tags"`
	FulfillmentStatus *string       `json:"fulfillment_status"`
	ShippingAddress   *OrderAddress `json:"shipping_address,omitempty"`
}

// OrderAddress is a REST mailing address.
type OrderAddress struct {
	Name         string `json:"name"`
	Company      string `json:"company,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city"`
	Province     string `json:"province,omitempty"`
	ProvinceCode string `json:"province_code,omitempty"`
	Zip          string `json:"zip,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
}

// orderFields limits GET /orders/{id}.json to what Order decodes.
const orderFields = "id,name,order_number,email,phone,total_price,currency,tags,fulfillment_status,shipping_address"

// FulfillmentOrder is the REST representation of a fulfillment order.
type FulfillmentOrder struct {
	ID               ID                         `json:"id"`
	OrderID          ID                         `json:"order_id"`
	Status           string                     `json:"status"`
	RequestStatus    string                     `json:"request_status"`
	AssignedLocation *AssignedLocation          `json:"assigned_location,omitempty"`
	LineItems        []FulfillmentOrderLineItem `json:"line_items"`
}

// AssignedLocation is where the fulfillment order is fulfilled from.
type AssignedLocation struct {
	Name string `json:"name"`
}

// FulfillmentOrderLineItem is one line of a fulfillment order.
type FulfillmentOrderLineItem struct {
	ID                  ID  `json:"id"`
	Quantity            int `json:"quantity"`
	FulfillableQuantity int `json:"fulfillable_quantity"`
}

// Fulfillment is the REST representation of a fulfillment.
type Fulfillment struct {
	ID              ID        `json:"id"`
	OrderID         ID        `json:"order_id"`
	Status          string    `json:"status"`
	TrackingNumber  string    `json:"tracking_number,omitempty"`
	TrackingCompany string    `json:"tracking_company,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FulfillmentInput is the request for fulfilling one fulfillment order.
type FulfillmentInput struct {
	FulfillmentOrderID string
	NotifyCustomer     bool
	Tracking           *TrackingInput
	Message            string
}

// TrackingInput is the tracking attached to a fulfillment.
type TrackingInput struct {
	Number  string `json:"number"`
	Company string `json:"company,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ID decodes Shopify identifiers, which REST sends as numbers and
// GraphQL as global ids ("gid://shopify/Fulfillment/123").
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(fromGID(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as JSON numbers, which the REST API expects.
func (id ID) MarshalJSON() ([]byte, error) {
	if id != "" && isDigits(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// toGID converts a numeric REST id to a GraphQL global id.
func toGID(kind, id string) string {
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return "gid://shopify/" + kind + "/" + id
}

// fromGID returns the numeric tail of a GraphQL global id.
func fromGID(gid string) string {
	if !strings.HasPrefix(gid, "gid://") {
		return gid
	}
	tail := gid[strings.LastIndex(gid, "/")+1:]
	if i := strings.IndexByte(tail, '?'); i >= 0 {
		tail = tail[:i]
	}
	return tail
}

// UserError is one entry of a GraphQL mutation's userErrors.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}
