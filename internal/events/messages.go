package events

import (
	"time"
)

// Event types.
const (
	TypeLabelCreated    = "label.created"
	TypeLabelFailed     = "label.failed"
	TypeLabelCancelled  = "label.cancelled"
	TypePickupReady     = "pickup.ready"
	TypePickupCollected = "pickup.collected"
	TypeShipmentShipped = "shipment.shipped"
)

// ShipmentEvent is emitted after each orchestration step that changed state.
type ShipmentEvent struct {
	Type       string    `json:"type"`
	OrgID      string    `json:"org_id"`
	OrderID    string    `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`

	LabelID        string `json:"label_id,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`

	OperationalStatus string `json:"operational_status,omitempty"`
	FulfillmentID     string `json:"fulfillment_id,omitempty"`
	ActorID           string `json:"actor_id,omitempty"`

	// Reconciled is false when the platform could not be fully aligned.
	Reconciled            *bool    `json:"reconciled,omitempty"`
	PendingFulfillmentIDs []string `json:"pending_fulfillment_ids,omitempty"`

	Error *string `json:"error,omitempty"`
}
