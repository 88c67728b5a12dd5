// Package shipping provides the contracts shared by the carrier aggregator
// client, the e-commerce platform client and the shipment orchestrator.
package shipping

import (
	"context"
)

// LabelProvider defines what the orchestrator needs from a carrier label API.
type LabelProvider interface {
	// Name returns the provider identifier (e.g., "aggregator").
	Name() string

	// CreateLabel generates a shipping label with the selected carrier.
	CreateLabel(ctx context.Context, req *LabelRequest) (*Label, error)

	// CancelLabel voids a previously generated label.
	CancelLabel(ctx context.Context, carrier Carrier, trackingNumber string) (*CancelLabelResult, error)
}

// FulfillmentPlatform defines what the orchestrator needs from the e-commerce
// platform's fulfillment subsystem.
type FulfillmentPlatform interface {
	// GetOrder returns the order with its shipping address. Unknown orders
	// are reported as ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID string) (*PlatformOrder, error)

	// ListFulfillmentOrders returns the fulfillment orders of a platform order.
	ListFulfillmentOrders(ctx context.Context, orderID string) ([]FulfillmentOrder, error)

	// CreateFulfillment fulfills a fulfillment order, with or without tracking.
	CreateFulfillment(ctx context.Context, req *CreateFulfillmentRequest) (string, error)

	// CancelOrderFulfillments cancels every non-cancelled fulfillment of the order.
	// A failure on one fulfillment does not stop the others.
	CancelOrderFulfillments(ctx context.Context, orderID string) ([]FulfillmentCancelAttempt, error)

	// GetTags reads the order tags from the platform.
	GetTags(ctx context.Context, orderID string) ([]string, error)

	// SetTags replaces the order tags on the platform.
	SetTags(ctx context.Context, orderID string, tags []string) error

	// AddTags reads the current tags, merges toAdd and writes them back when changed.
	AddTags(ctx context.Context, orderID string, toAdd ...string) ([]string, error)

	// RemoveTagsFromOrder reads the current tags, drops toRemove and writes them back when changed.
	RemoveTagsFromOrder(ctx context.Context, orderID string, toRemove ...string) ([]string, error)
}
