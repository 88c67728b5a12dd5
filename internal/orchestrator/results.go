package orchestrator

import (
	"github.com/atelierops/fulfillment/internal/coverage"
	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/shopspring/decimal"
)

// CreateLabelRequest asks for a carrier label for an order.
type CreateLabelRequest struct {
	OrgID   string
	OrderID string
	UserID  string

	// Carrier overrides coverage-based selection when set.
	Carrier shipping.Carrier
	Service string

	// Package overrides. Zero values keep the configured defaults.
	Weight        float64
	DeclaredValue decimal.Decimal
	Content       string
}

// CreateLabelResult is returned by CreateLabel.
type CreateLabelResult struct {
	Label *models.Label `json:"label"`

	// AlreadyExisted is true when an active label was returned unchanged.
	AlreadyExisted bool `json:"alreadyExisted"`

	CarrierSource coverage.SelectionSource `json:"carrierSource,omitempty"`
}

// FulfillmentResult is returned by the pickup and ship confirmations.
type FulfillmentResult struct {
	OrderID            string             `json:"orderId"`
	FulfillmentOrderID string             `json:"fulfillmentOrderId,omitempty"`
	FulfillmentID      string             `json:"fulfillmentId,omitempty"`
	OperationalStatus  models.OrderStatus `json:"operationalStatus"`

	// AlreadyFulfilled is true when the platform had already closed the
	// fulfillment order and no fulfillment was created.
	AlreadyFulfilled bool `json:"alreadyFulfilled"`

	Tags       []string `json:"tags,omitempty"`
	TagWarning string   `json:"tagWarning,omitempty"`
}

// CancelLabelRequest asks to void a carrier label.
type CancelLabelRequest struct {
	OrgID   string
	LabelID string
	UserID  string
}

// CancelLabelResult is returned by CancelLabel. A cancelled carrier label
// whose platform fulfillments could not all be cancelled is still a success,
// reported with ShopifyFulfillmentCancelled false and the pending ids.
type CancelLabelResult struct {
	Label *models.Label `json:"label"`

	CarrierAlreadyCancelled bool `json:"carrierAlreadyCancelled"`
	BalanceReturned         bool `json:"balanceReturned"`

	ShopifyFulfillmentCancelled bool                                `json:"shopifyFulfillmentCancelled"`
	FulfillmentAttempts         []shipping.FulfillmentCancelAttempt `json:"fulfillmentAttempts,omitempty"`
	PendingFulfillmentIDs       []string                            `json:"pendingFulfillmentIds,omitempty"`
	ShopifyError                string                              `json:"shopifyError,omitempty"`

	OperationalStatus models.OrderStatus `json:"operationalStatus"`
	TagWarning        string             `json:"tagWarning,omitempty"`
}

// Shipment is the read model of an order's shipment.
type Shipment struct {
	Order  *models.Order   `json:"order"`
	Label  *models.Label   `json:"label,omitempty"`
	Labels []*models.Label `json:"labels"`
	State  ShipmentState   `json:"state"`
}
