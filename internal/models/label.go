package models

import (
	"encoding/json"
	"time"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/shopspring/decimal"
)

// LabelStatus is the lifecycle status of a shipping label.
type LabelStatus string

const (
	LabelStatusCreated   LabelStatus = "created"
	LabelStatusError     LabelStatus = "error"
	LabelStatusCancelled LabelStatus = "cancelled"
	LabelStatusManual    LabelStatus = "manual"
)

// IsActive reports whether the label counts as the order's shipping label.
// Error rows are kept for audit only and never block a retry.
func (s LabelStatus) IsActive() bool {
	return s == LabelStatusCreated || s == LabelStatusManual
}

// Label is one row of shipping_labels.
type Label struct {
	ID          string `json:"id"`
	OrgID       string `json:"orgId"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`

	Carrier        shipping.Carrier `json:"carrier"`
	Service        string           `json:"service,omitempty"`
	TrackingNumber string           `json:"trackingNumber,omitempty"`
	TrackingURL    string           `json:"trackingUrl,omitempty"`
	LabelURL       string           `json:"labelUrl,omitempty"`
	ShipmentID     string           `json:"shipmentId,omitempty"`
	Price          decimal.Decimal  `json:"price"`
	Currency       string           `json:"currency"`
	Status         LabelStatus      `json:"status"`
	ErrorMessage   string           `json:"errorMessage,omitempty"`

	DestinationAddress    string `json:"destinationAddress,omitempty"`
	DestinationCity       string `json:"destinationCity"`
	DestinationDepartment string `json:"destinationDepartment,omitempty"`
	PostalCode            string `json:"postalCode,omitempty"`
	RecipientName         string `json:"recipientName,omitempty"`
	RecipientPhone        string `json:"recipientPhone,omitempty"`

	RawResponse       json.RawMessage     `json:"rawResponse,omitempty"`
	CancellationTrail []CancellationEntry `json:"cancellationTrail"`

	CreatedBy   string     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// Cancellation trail steps.
const (
	TrailStepCarrier  = "carrier"
	TrailStepPlatform = "platform"
)

// CancellationEntry is one append-only record of a cancellation attempt.
type CancellationEntry struct {
	Step string    `json:"step"`
	At   time.Time `json:"at"`
	By   string    `json:"by,omitempty"`

	CarrierResponse  json.RawMessage `json:"carrier_response,omitempty"`
	AlreadyCancelled bool            `json:"already_cancelled,omitempty"`
	BalanceReturned  bool            `json:"balance_returned,omitempty"`

	PlatformReconciled    *bool    `json:"platform_reconciled,omitempty"`
	CancelledFulfillments []string `json:"cancelled_fulfillments,omitempty"`
	PendingFulfillmentIDs []string `json:"pending_fulfillment_ids,omitempty"`
	Error                 string   `json:"error,omitempty"`
}
