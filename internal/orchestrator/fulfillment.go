package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/atelierops/fulfillment/internal/events"
	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	opPickupReady     = "confirm_pickup_ready"
	opPickupCollected = "confirm_pickup_collected"
	opShip            = "confirm_shipment"
)

// selectFulfillmentOrder returns the first fulfillment order accepted by
// actionable. closed reports whether some fulfillment order was already closed.
func selectFulfillmentOrder(fos []shipping.FulfillmentOrder, actionable func(shipping.FulfillmentOrderStatus) bool) (fo *shipping.FulfillmentOrder, closed bool) {
	for i := range fos {
		if actionable(fos[i].Status) {
			return &fos[i], false
		}
		if fos[i].Status.IsClosed() {
			closed = true
		}
	}
	return nil, closed
}

// ConfirmPickupReady tells the customer the order is ready at the store:
// it fulfills the open fulfillment order with notification, tags the
// platform order and moves the order to awaiting_pickup.
func (o *Orchestrator) ConfirmPickupReady(ctx context.Context, orgID, orderID, userID string) (result *FulfillmentResult, err error) {
	ctx, span := o.startSpan(ctx, opPickupReady, orgID, attribute.String("order_id", orderID))
	start := time.Now()
	defer func() { o.finish(span, opPickupReady, "", start, err) }()

	log := o.logger.With(zap.String("org_id", orgID), zap.String("order_id", orderID))

	order, err := o.loadOrder(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}
	if order.OperationalStatus == models.OrderStatusShipped {
		log.Info("Order already shipped, pickup readiness not changed")
		return &FulfillmentResult{OrderID: orderID, OperationalStatus: order.OperationalStatus, AlreadyFulfilled: true}, nil
	}

	fos, err := o.platform.ListFulfillmentOrders(ctx, orderID)
	if err != nil {
		o.upstreamError(err)
		return nil, err
	}

	fulfilled := strPtr(models.FulfillmentStatusFulfilled)
	fo, closed := selectFulfillmentOrder(fos, shipping.FulfillmentOrderStatus.IsOpen)
	if fo == nil {
		if !closed {
			return nil, shipping.ErrNoActionableFulfillmentOrder
		}
		if err := o.setStatus(ctx, order, models.OrderStatusUpdate{
			Status: models.OrderStatusAwaitingPickup, FulfillmentStatus: fulfilled,
		}); err != nil {
			return nil, err
		}
		log.Info("Fulfillment order already closed, pickup marked ready")
		return &FulfillmentResult{OrderID: orderID, OperationalStatus: order.OperationalStatus, AlreadyFulfilled: true}, nil
	}

	fulfillmentID, err := o.platform.CreateFulfillment(ctx, &shipping.CreateFulfillmentRequest{
		FulfillmentOrderID: fo.ID,
		NotifyCustomer:     true,
	})
	if err != nil {
		o.upstreamError(err)
		log.Warn("Pickup fulfillment failed", zap.String("fulfillment_order_id", fo.ID), zap.Error(err))
		return nil, err
	}

	result = &FulfillmentResult{OrderID: orderID, FulfillmentOrderID: fo.ID, FulfillmentID: fulfillmentID}

	tags, err := o.platform.AddTags(ctx, orderID, shipping.TagReadyForPickup)
	if err != nil {
		result.TagWarning = err.Error()
		log.Warn("Failed to tag order ready for pickup", zap.Error(err))
	}
	result.Tags = tags

	if err := o.setStatus(ctx, order, models.OrderStatusUpdate{
		Status: models.OrderStatusAwaitingPickup, FulfillmentStatus: fulfilled,
	}); err != nil {
		log.Error("Pickup fulfillment created but order status not updated",
			zap.String("fulfillment_id", fulfillmentID), zap.Error(err))
		return nil, err
	}
	result.OperationalStatus = order.OperationalStatus

	log.Info("Pickup ready", zap.String("fulfillment_id", fulfillmentID))
	o.publish(ctx, events.ShipmentEvent{
		Type: events.TypePickupReady, OrgID: orgID, OrderID: orderID,
		FulfillmentID: fulfillmentID, OperationalStatus: string(order.OperationalStatus), ActorID: userID,
	})
	return result, nil
}

// ConfirmPickupCollected records that the customer took the order: it
// fulfills the pickup fulfillment order without notification and marks the
// order shipped by the acting user.
func (o *Orchestrator) ConfirmPickupCollected(ctx context.Context, orgID, orderID, userID string) (result *FulfillmentResult, err error) {
	ctx, span := o.startSpan(ctx, opPickupCollected, orgID, attribute.String("order_id", orderID))
	start := time.Now()
	defer func() { o.finish(span, opPickupCollected, "", start, err) }()

	return o.ship(ctx, shipParams{
		operation:  opPickupCollected,
		orgID:      orgID,
		orderID:    orderID,
		userID:     userID,
		actionable: shipping.FulfillmentOrderStatus.IsPickupCollectable,
		tag:        shipping.TagDelivered,
		eventType:  events.TypePickupCollected,
	})
}

// ConfirmShipment dispatches the order with its carrier label: it fulfills
// the open fulfillment order with the tracking details, without notifying
// the customer, and marks the order shipped.
func (o *Orchestrator) ConfirmShipment(ctx context.Context, orgID, orderID, userID string) (result *FulfillmentResult, err error) {
	ctx, span := o.startSpan(ctx, opShip, orgID, attribute.String("order_id", orderID))
	start := time.Now()
	var carrier shipping.Carrier
	defer func() { o.finish(span, opShip, carrier, start, err) }()

	label, err := o.store.FindActiveLabel(ctx, orgID, orderID)
	if err != nil {
		if errors.Is(err, shipping.ErrLabelNotFound) {
			return nil, shipping.ErrNoActiveLabel
		}
		return nil, err
	}
	if label.TrackingNumber == "" {
		return nil, shipping.ErrMissingTrackingNumber
	}
	carrier = label.Carrier
	span.SetAttributes(attribute.String("carrier", string(carrier)))

	return o.ship(ctx, shipParams{
		operation:  opShip,
		orgID:      orgID,
		orderID:    orderID,
		userID:     userID,
		actionable: shipping.FulfillmentOrderStatus.IsOpen,
		tracking: &shipping.TrackingInfo{
			Number:  label.TrackingNumber,
			Company: label.Carrier.DisplayName(),
			URL:     label.TrackingURL,
		},
		tag:       shipping.TagShipped,
		eventType: events.TypeShipmentShipped,
		label:     label,
	})
}

type shipParams struct {
	operation  string
	orgID      string
	orderID    string
	userID     string
	actionable func(shipping.FulfillmentOrderStatus) bool
	tracking   *shipping.TrackingInfo
	tag        string
	eventType  string
	label      *models.Label
}

// ship fulfills an order that leaves the building and projects it as
// shipped. Tag failures are reported in the result only.
func (o *Orchestrator) ship(ctx context.Context, p shipParams) (*FulfillmentResult, error) {
	log := o.logger.With(zap.String("org_id", p.orgID), zap.String("order_id", p.orderID))

	order, err := o.loadOrder(ctx, p.orgID, p.orderID)
	if err != nil {
		return nil, err
	}

	fos, err := o.platform.ListFulfillmentOrders(ctx, p.orderID)
	if err != nil {
		o.upstreamError(err)
		return nil, err
	}

	now := o.now()
	shipped := models.OrderStatusUpdate{
		Status:            models.OrderStatusShipped,
		FulfillmentStatus: strPtr(models.FulfillmentStatusFulfilled),
		ShippedAt:         &now,
		ShippedBy:         p.userID,
	}

	fo, closed := selectFulfillmentOrder(fos, p.actionable)
	if fo == nil {
		if !closed {
			return nil, shipping.ErrNoActionableFulfillmentOrder
		}
		if err := o.setStatus(ctx, order, shipped); err != nil {
			return nil, err
		}
		log.Info("Fulfillment order already closed, order marked shipped", zap.String("operation", p.operation))
		return &FulfillmentResult{OrderID: p.orderID, OperationalStatus: order.OperationalStatus, AlreadyFulfilled: true}, nil
	}

	fulfillmentID, err := o.platform.CreateFulfillment(ctx, &shipping.CreateFulfillmentRequest{
		FulfillmentOrderID: fo.ID,
		NotifyCustomer:     false,
		Tracking:           p.tracking,
	})
	if err != nil {
		o.upstreamError(err)
		log.Warn("Fulfillment creation failed",
			zap.String("operation", p.operation),
			zap.String("fulfillment_order_id", fo.ID),
			zap.Error(err))
		return nil, err
	}

	result := &FulfillmentResult{OrderID: p.orderID, FulfillmentOrderID: fo.ID, FulfillmentID: fulfillmentID}

	if err := o.setStatus(ctx, order, shipped); err != nil {
		log.Error("Fulfillment created but order status not updated",
			zap.String("fulfillment_id", fulfillmentID), zap.Error(err))
		return nil, err
	}
	result.OperationalStatus = order.OperationalStatus

	tags, err := o.platform.AddTags(ctx, p.orderID, p.tag)
	if err != nil {
		result.TagWarning = err.Error()
		log.Warn("Failed to tag shipped order", zap.String("tag", p.tag), zap.Error(err))
	}
	result.Tags = tags

	log.Info("Order shipped",
		zap.String("operation", p.operation),
		zap.String("fulfillment_id", fulfillmentID))

	ev := events.ShipmentEvent{
		Type: p.eventType, OrgID: p.orgID, OrderID: p.orderID,
		FulfillmentID: fulfillmentID, OperationalStatus: string(order.OperationalStatus), ActorID: p.userID,
	}
	if p.label != nil {
		ev.LabelID = p.label.ID
		ev.Carrier = string(p.label.Carrier)
		ev.TrackingNumber = p.label.TrackingNumber
	}
	o.publish(ctx, ev)
	return result, nil
}
