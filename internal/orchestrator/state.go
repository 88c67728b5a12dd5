package orchestrator

import (
	"github.com/atelierops/fulfillment/internal/models"
)

// orderTransitions lists, per status, the statuses an orchestration step may
// write next. Same-status entries make retries idempotent. Nothing returns
// to pending; every status may go back to packing through cancellation.
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending: {
		models.OrderStatusPacking,
		models.OrderStatusAwaitingPickup,
		models.OrderStatusShipped,
	},
	models.OrderStatusPacking: {
		models.OrderStatusPacking,
		models.OrderStatusAwaitingPickup,
		models.OrderStatusShipped,
	},
	models.OrderStatusAwaitingPickup: {
		models.OrderStatusAwaitingPickup,
		models.OrderStatusShipped,
		models.OrderStatusPacking,
	},
	models.OrderStatusShipped: {
		models.OrderStatusShipped,
		models.OrderStatusPacking,
	},
}

// CanTransition reports whether the operational status may move from one value to another.
func CanTransition(from, to models.OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// labelTransitions lists the status changes a stored label may go through.
// Labels are inserted as created, error or manual; only created labels
// can be cancelled.
var labelTransitions = map[models.LabelStatus][]models.LabelStatus{
	models.LabelStatusCreated: {models.LabelStatusCancelled},
}

// CanTransitionLabel reports whether a label may move from one status to another.
func CanTransitionLabel(from, to models.LabelStatus) bool {
	for _, s := range labelTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ShipmentState is the order's position in the shipment lifecycle.
type ShipmentState string

const (
	StateNoLabel      ShipmentState = "no_label"
	StateLabelCreated ShipmentState = "label_created"
	StatePickupReady  ShipmentState = "pickup_ready"
	StateShipped      ShipmentState = "shipped"
)

// DeriveState computes the shipment state from the order projection and its
// active label, which may be nil.
func DeriveState(order *models.Order, label *models.Label) ShipmentState {
	if order != nil {
		switch order.OperationalStatus {
		case models.OrderStatusShipped:
			return StateShipped
		case models.OrderStatusAwaitingPickup:
			return StatePickupReady
		}
	}
	if label != nil && label.Status.IsActive() {
		return StateLabelCreated
	}
	return StateNoLabel
}
