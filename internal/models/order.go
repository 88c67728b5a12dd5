package models

import (
	"time"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/shopspring/decimal"
)

// OrderStatus is the operational status the packing and reporting screens read.
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusPacking        OrderStatus = "packing"
	OrderStatusAwaitingPickup OrderStatus = "awaiting_pickup"
	OrderStatusShipped        OrderStatus = "shipped"
)

// Mirror values of the platform's order fulfillment status.
const (
	FulfillmentStatusUnfulfilled = "unfulfilled"
	FulfillmentStatusFulfilled   = "fulfilled"
)

// Order is the local projection of a platform order.
type Order struct {
	ID          string `json:"id"` // platform order id
	OrgID       string `json:"orgId"`
	OrderNumber string `json:"orderNumber"`

	OperationalStatus OrderStatus `json:"operationalStatus"`
	FulfillmentStatus string      `json:"fulfillmentStatus"`
	ShippedAt         *time.Time  `json:"shippedAt,omitempty"`
	ShippedBy         string      `json:"shippedBy,omitempty"`

	ShippingAddress shipping.Address `json:"shippingAddress"`
	TotalPrice      decimal.Decimal  `json:"totalPrice"`
	Tags            []string         `json:"tags,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OrderStatusUpdate is the projection written after an orchestration step.
type OrderStatusUpdate struct {
	Status OrderStatus

	// FulfillmentStatus replaces the mirror when non-nil.
	FulfillmentStatus *string

	// ShippedAt and ShippedBy are written when ShippedAt is non-nil.
	ShippedAt *time.Time
	ShippedBy string

	// ClearShipped resets shipped_at and shipped_by to NULL.
	ClearShipped bool
}
