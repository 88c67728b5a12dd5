package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atelierops/fulfillment/internal/events"
	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	opCreateLabel = "create_label"
	opCancelLabel = "cancel_label"
)

// shipmentTags are the platform tags removed when a label is cancelled.
var shipmentTags = []string{shipping.TagShipped, shipping.TagReadyForPickup, shipping.TagDelivered}

// CreateLabel generates a carrier label for an order, at most once. When an
// active label exists it is returned unchanged and the carrier is not
// called. A carrier failure is stored as an error row and returned.
func (o *Orchestrator) CreateLabel(ctx context.Context, req CreateLabelRequest) (result *CreateLabelResult, err error) {
	ctx, span := o.startSpan(ctx, opCreateLabel, req.OrgID, attribute.String("order_id", req.OrderID))
	start := time.Now()
	var carrier shipping.Carrier
	defer func() { o.finish(span, opCreateLabel, carrier, start, err) }()

	log := o.logger.With(zap.String("org_id", req.OrgID), zap.String("order_id", req.OrderID))

	existing, err := o.store.FindActiveLabel(ctx, req.OrgID, req.OrderID)
	switch {
	case err == nil:
		carrier = existing.Carrier
		log.Info("Active label already exists", zap.String("label_id", existing.ID))
		return &CreateLabelResult{Label: existing, AlreadyExisted: true}, nil
	case !errors.Is(err, shipping.ErrLabelNotFound):
		return nil, fmt.Errorf("find active label: %w", err)
	}

	order, err := o.loadOrder(ctx, req.OrgID, req.OrderID)
	if err != nil {
		return nil, err
	}

	dest := order.ShippingAddress
	sel, err := o.resolver.ResolveCarrier(ctx, req.OrgID, dest.City, dest.Department, req.Carrier)
	if err != nil {
		return nil, err
	}
	carrier = sel.Carrier
	if sel.PostalCode != "" {
		dest.PostalCode = sel.PostalCode
	}
	span.SetAttributes(attribute.String("carrier", string(carrier)), attribute.String("carrier_source", string(sel.Source)))

	labelReq := &shipping.LabelRequest{
		Reference:     order.OrderNumber,
		Carrier:       carrier,
		Service:       req.Service,
		Destination:   dest,
		Weight:        req.Weight,
		DeclaredValue: req.DeclaredValue,
		Content:       req.Content,
	}

	row := &models.Label{
		OrgID:                 req.OrgID,
		OrderID:               req.OrderID,
		OrderNumber:           order.OrderNumber,
		Carrier:               carrier,
		Service:               req.Service,
		DestinationAddress:    strings.TrimSpace(dest.Street + " " + dest.Number),
		DestinationCity:       dest.City,
		DestinationDepartment: dest.Department,
		PostalCode:            dest.PostalCode,
		RecipientName:         dest.Name,
		RecipientPhone:        dest.Phone,
		CreatedBy:             req.UserID,
	}

	label, err := o.labels.CreateLabel(ctx, labelReq)
	if err != nil {
		o.upstreamError(err)
		o.recordFailedLabel(ctx, row, err)
		log.Warn("Carrier label creation failed", zap.String("carrier", string(carrier)), zap.Error(err))
		msg := err.Error()
		o.publish(ctx, events.ShipmentEvent{
			Type: events.TypeLabelFailed, OrgID: req.OrgID, OrderID: req.OrderID,
			Carrier: string(carrier), ActorID: req.UserID, Error: &msg,
		})
		return nil, err
	}

	row.Status = models.LabelStatusCreated
	row.Carrier = label.Carrier
	row.Service = label.Service
	row.TrackingNumber = label.TrackingNumber
	row.TrackingURL = label.TrackingURL
	row.LabelURL = label.LabelURL
	row.ShipmentID = label.ShipmentID
	row.Price = label.Price
	row.Currency = label.Currency
	row.RawResponse = label.Raw

	if err := o.store.InsertLabel(ctx, row); err != nil {
		if !errors.Is(err, shipping.ErrLabelConflict) {
			log.Error("Carrier label generated but not stored",
				zap.String("tracking_number", label.TrackingNumber), zap.Error(err))
			return nil, fmt.Errorf("store label: %w", err)
		}
		// A concurrent request stored its label first; ours is orphaned at the carrier.
		winner, findErr := o.store.FindActiveLabel(ctx, req.OrgID, req.OrderID)
		if findErr != nil {
			return nil, fmt.Errorf("reload active label: %w", findErr)
		}
		log.Warn("Concurrent label creation, keeping the stored label",
			zap.String("label_id", winner.ID),
			zap.String("orphan_tracking_number", label.TrackingNumber))
		return &CreateLabelResult{Label: winner, AlreadyExisted: true}, nil
	}

	log.Info("Label created",
		zap.String("label_id", row.ID),
		zap.String("carrier", string(row.Carrier)),
		zap.String("tracking_number", row.TrackingNumber))

	o.publish(ctx, events.ShipmentEvent{
		Type: events.TypeLabelCreated, OrgID: req.OrgID, OrderID: req.OrderID,
		LabelID: row.ID, Carrier: string(row.Carrier), TrackingNumber: row.TrackingNumber,
		ActorID: req.UserID,
	})

	return &CreateLabelResult{Label: row, CarrierSource: sel.Source}, nil
}

// recordFailedLabel stores an error row for audit. Storage failures are logged only.
func (o *Orchestrator) recordFailedLabel(ctx context.Context, row *models.Label, cause error) {
	row.Status = models.LabelStatusError
	row.ErrorMessage = cause.Error()

	var se *shipping.ShippingError
	if errors.As(cause, &se) && se.Body != "" && json.Valid([]byte(se.Body)) {
		row.RawResponse = json.RawMessage(se.Body)
	}

	if err := o.store.InsertLabel(ctx, row); err != nil {
		o.logger.Ctx(ctx).Warn("Failed to store error label",
			zap.String("order_id", row.OrderID), zap.Error(err))
	}
}

// CancelLabel voids a carrier label, then compensates on the platform and
// returns the order to packing. Once the carrier accepts, the label is
// persisted as cancelled and the order is reset even if ctx is cancelled.
// Platform compensation is best-effort and reported in the result.
func (o *Orchestrator) CancelLabel(ctx context.Context, req CancelLabelRequest) (result *CancelLabelResult, err error) {
	ctx, span := o.startSpan(ctx, opCancelLabel, req.OrgID, attribute.String("label_id", req.LabelID))
	start := time.Now()
	var carrier shipping.Carrier
	defer func() { o.finish(span, opCancelLabel, carrier, start, err) }()

	label, err := o.store.GetLabel(ctx, req.OrgID, req.LabelID)
	if err != nil {
		return nil, err
	}
	carrier = label.Carrier

	switch {
	case label.Status == models.LabelStatusCancelled:
		return nil, shipping.ErrLabelAlreadyCancelled
	case label.Status == models.LabelStatusManual:
		return nil, shipping.ErrManualLabel
	case !CanTransitionLabel(label.Status, models.LabelStatusCancelled):
		return nil, shipping.ErrLabelNotActive
	case label.TrackingNumber == "":
		return nil, shipping.ErrMissingTrackingNumber
	}

	log := o.logger.With(
		zap.String("org_id", req.OrgID),
		zap.String("order_id", label.OrderID),
		zap.String("label_id", label.ID),
		zap.String("tracking_number", label.TrackingNumber))

	cancelled, err := o.labels.CancelLabel(ctx, label.Carrier, label.TrackingNumber)
	if err != nil {
		o.upstreamError(err)
		log.Warn("Carrier rejected label cancellation", zap.Error(err))
		return nil, err
	}

	// The carrier voided the label; nothing below may be skipped because
	// the caller went away.
	persistCtx := context.WithoutCancel(ctx)
	now := o.now()

	carrierEntry := models.CancellationEntry{
		Step:             models.TrailStepCarrier,
		At:               now,
		By:               req.UserID,
		CarrierResponse:  cancelled.Raw,
		AlreadyCancelled: cancelled.AlreadyCancelled,
		BalanceReturned:  cancelled.BalanceReturned,
	}
	if err := o.store.MarkLabelCancelled(persistCtx, req.OrgID, label.ID, carrierEntry); err != nil {
		log.Error("Carrier label cancelled but local state not updated", zap.Error(err))
		return nil, fmt.Errorf("mark label cancelled: %w", err)
	}
	label.Status = models.LabelStatusCancelled
	label.CancelledAt = &now
	label.CancellationTrail = append(label.CancellationTrail, carrierEntry)

	result = &CancelLabelResult{
		Label:                   label,
		CarrierAlreadyCancelled: cancelled.AlreadyCancelled,
		BalanceReturned:         cancelled.BalanceReturned,
	}

	o.compensatePlatform(ctx, log, label.OrderID, result)

	upd := models.OrderStatusUpdate{Status: models.OrderStatusPacking, ClearShipped: true}
	if result.ShopifyFulfillmentCancelled {
		upd.FulfillmentStatus = strPtr(models.FulfillmentStatusUnfulfilled)
	}
	order := &models.Order{ID: label.OrderID, OrgID: req.OrgID}
	if current, getErr := o.store.GetOrder(persistCtx, req.OrgID, label.OrderID); getErr == nil {
		order = current
	} else {
		log.Warn("Order projection unavailable before reset", zap.Error(getErr))
		order.OperationalStatus = models.OrderStatusPacking
	}
	if err := o.setStatus(persistCtx, order, upd); err != nil {
		log.Error("Label cancelled but order not reset to packing", zap.Error(err))
		return nil, fmt.Errorf("reset order status: %w", err)
	}
	result.OperationalStatus = order.OperationalStatus

	reconciled := result.ShopifyFulfillmentCancelled
	platformEntry := models.CancellationEntry{
		Step:                  models.TrailStepPlatform,
		At:                    o.now(),
		By:                    req.UserID,
		PlatformReconciled:    &reconciled,
		PendingFulfillmentIDs: result.PendingFulfillmentIDs,
		Error:                 result.ShopifyError,
	}
	for _, a := range result.FulfillmentAttempts {
		if a.Cancelled {
			platformEntry.CancelledFulfillments = append(platformEntry.CancelledFulfillments, a.FulfillmentID)
		}
	}
	if err := o.store.AppendCancellationTrail(persistCtx, req.OrgID, label.ID, platformEntry); err != nil {
		log.Warn("Failed to append platform step to cancellation trail", zap.Error(err))
	}
	label.CancellationTrail = append(label.CancellationTrail, platformEntry)

	if _, err := o.platform.RemoveTagsFromOrder(ctx, label.OrderID, shipmentTags...); err != nil {
		result.TagWarning = err.Error()
		log.Warn("Failed to remove shipment tags", zap.Error(err))
	}

	if !reconciled {
		if o.metrics != nil {
			o.metrics.PendingReconciliation(opCancelLabel)
		}
		log.Warn("Label cancelled with pending platform fulfillments",
			zap.Strings("pending_fulfillment_ids", result.PendingFulfillmentIDs),
			zap.String("shopify_error", result.ShopifyError))
	} else {
		log.Info("Label cancelled", zap.Bool("already_cancelled", cancelled.AlreadyCancelled))
	}

	ev := events.ShipmentEvent{
		Type: events.TypeLabelCancelled, OrgID: req.OrgID, OrderID: label.OrderID,
		LabelID: label.ID, Carrier: string(label.Carrier), TrackingNumber: label.TrackingNumber,
		OperationalStatus: string(result.OperationalStatus), ActorID: req.UserID,
		Reconciled: &reconciled, PendingFulfillmentIDs: result.PendingFulfillmentIDs,
	}
	if result.ShopifyError != "" {
		ev.Error = strPtr(result.ShopifyError)
	}
	o.publish(persistCtx, ev)

	return result, nil
}

// compensatePlatform cancels the order's platform fulfillments and fills the
// reconciliation fields of result.
func (o *Orchestrator) compensatePlatform(ctx context.Context, log *zap.Logger, orderID string, result *CancelLabelResult) {
	attempts, err := o.platform.CancelOrderFulfillments(ctx, orderID)
	if err != nil {
		o.upstreamError(err)
		result.ShopifyError = err.Error()
		log.Warn("Failed to list platform fulfillments for cancellation", zap.Error(err))
		return
	}

	result.FulfillmentAttempts = attempts
	var errs []string
	for _, a := range attempts {
		if a.Cancelled {
			continue
		}
		result.PendingFulfillmentIDs = append(result.PendingFulfillmentIDs, a.FulfillmentID)
		errs = append(errs, a.FulfillmentID+": "+a.Error)
	}
	result.ShopifyFulfillmentCancelled = len(result.PendingFulfillmentIDs) == 0
	result.ShopifyError = strings.Join(errs, "; ")
}
