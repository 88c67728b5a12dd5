package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"go.uber.org/zap"
)

// loadOrder reads the local projection of an order. An order the store has
// never seen is fetched from the platform and upserted first.
func (o *Orchestrator) loadOrder(ctx context.Context, orgID, orderID string) (*models.Order, error) {
	order, err := o.store.GetOrder(ctx, orgID, orderID)
	if err == nil || !errors.Is(err, shipping.ErrOrderNotFound) {
		return order, err
	}

	po, err := o.platform.GetOrder(ctx, orderID)
	if err != nil {
		if !errors.Is(err, shipping.ErrOrderNotFound) {
			o.upstreamError(err)
		}
		return nil, err
	}

	imported := &models.Order{
		ID:                orderID,
		OrgID:             orgID,
		OrderNumber:       po.Number,
		OperationalStatus: models.OrderStatusPending,
		FulfillmentStatus: po.FulfillmentStatus,
		ShippingAddress:   po.ShippingAddress,
		TotalPrice:        po.TotalPrice,
		Tags:              po.Tags,
	}
	if imported.OrderNumber == "" {
		imported.OrderNumber = orderID
	}
	if err := o.store.UpsertOrder(ctx, imported); err != nil {
		return nil, fmt.Errorf("import order: %w", err)
	}

	o.logger.Ctx(ctx).Info("Imported order from platform",
		zap.String("org_id", orgID),
		zap.String("order_id", orderID),
		zap.String("order_number", imported.OrderNumber),
		zap.String("fulfillment_status", imported.FulfillmentStatus),
	)

	// A concurrent import may have won; the stored row is authoritative.
	return o.store.GetOrder(ctx, orgID, orderID)
}
