package orchestrator

import (
	"context"
	"errors"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"go.opentelemetry.io/otel/attribute"
)

// GetShipment returns the order projection, its active label and label history.
func (o *Orchestrator) GetShipment(ctx context.Context, orgID, orderID string) (*Shipment, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.get_shipment")
	defer span.End()
	span.SetAttributes(attribute.String("org_id", orgID), attribute.String("order_id", orderID))

	order, err := o.loadOrder(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}

	active, err := o.store.FindActiveLabel(ctx, orgID, orderID)
	if err != nil && !errors.Is(err, shipping.ErrLabelNotFound) {
		return nil, err
	}

	labels, err := o.store.ListLabels(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}

	return &Shipment{
		Order:  order,
		Label:  active,
		Labels: labels,
		State:  DeriveState(order, active),
	}, nil
}
