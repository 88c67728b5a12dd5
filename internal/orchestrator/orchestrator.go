// Package orchestrator drives the shipment lifecycle of an order across the
// local store, the carrier aggregator and the e-commerce platform. There is
// no shared transaction between the three: each operation is a sequential
// chain whose idempotency checks make retries safe.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelierops/fulfillment/internal/coverage"
	"github.com/atelierops/fulfillment/internal/events"
	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/atelierops/fulfillment/internal/orchestrator"

// Store is the local shipment store.
type Store interface {
	FindActiveLabel(ctx context.Context, orgID, orderID string) (*models.Label, error)
	GetLabel(ctx context.Context, orgID, labelID string) (*models.Label, error)
	ListLabels(ctx context.Context, orgID, orderID string) ([]*models.Label, error)
	InsertLabel(ctx context.Context, label *models.Label) error
	MarkLabelCancelled(ctx context.Context, orgID, labelID string, entry models.CancellationEntry) error
	AppendCancellationTrail(ctx context.Context, orgID, labelID string, entry models.CancellationEntry) error

	GetOrder(ctx context.Context, orgID, orderID string) (*models.Order, error)
	UpsertOrder(ctx context.Context, order *models.Order) error
	UpdateOrderStatus(ctx context.Context, orgID, orderID string, upd models.OrderStatusUpdate) error
}

// CarrierResolver picks the carrier and postal code of a destination.
type CarrierResolver interface {
	ResolveCarrier(ctx context.Context, orgID, city, department string, preferred shipping.Carrier) (coverage.Selection, error)
}

// EventPublisher receives lifecycle events. Publishing is best-effort.
type EventPublisher interface {
	PublishShipmentEvent(ctx context.Context, ev events.ShipmentEvent) error
}

// Metrics records operation outcomes.
type Metrics interface {
	ObserveOperation(operation, carrier, status string, d time.Duration)
	UpstreamError(system, kind string)
	PendingReconciliation(operation string)
}

// Orchestrator implements the shipment lifecycle operations.
type Orchestrator struct {
	store     Store
	resolver  CarrierResolver
	labels    shipping.LabelProvider
	platform  shipping.FulfillmentPlatform
	publisher EventPublisher
	metrics   Metrics
	logger    *otelzap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(store Store, resolver CarrierResolver, labels shipping.LabelProvider, platform shipping.FulfillmentPlatform, logger *otelzap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	o := &Orchestrator{
		store:    store,
		resolver: resolver,
		labels:   labels,
		platform: platform,
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) startSpan(ctx context.Context, operation, orgID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("org_id", orgID))
	return o.tracer.Start(ctx, "orchestrator."+operation, trace.WithAttributes(attrs...))
}

// finish closes the span and records the operation metric.
func (o *Orchestrator) finish(span trace.Span, operation string, carrier shipping.Carrier, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if o.metrics != nil {
		o.metrics.ObserveOperation(operation, string(carrier), status, time.Since(start))
	}
}

func (o *Orchestrator) upstreamError(err error) {
	if o.metrics == nil {
		return
	}
	var se *shipping.ShippingError
	if !errors.As(err, &se) {
		return
	}
	if se.Kind == shipping.KindConfiguration || se.Kind == shipping.KindUpstream {
		o.metrics.UpstreamError(se.Source, string(se.Kind))
	}
}

// publish sends a lifecycle event; failures are logged and swallowed.
func (o *Orchestrator) publish(ctx context.Context, ev events.ShipmentEvent) {
	if o.publisher == nil {
		return
	}
	ev.OccurredAt = o.now()
	if err := o.publisher.PublishShipmentEvent(ctx, ev); err != nil {
		o.logger.Ctx(ctx).Warn("Failed to publish shipment event",
			zap.String("type", ev.Type),
			zap.String("order_id", ev.OrderID),
			zap.Error(err))
	}
}

// setStatus writes the operational status projection after checking the
// transition against the order's current status.
func (o *Orchestrator) setStatus(ctx context.Context, order *models.Order, upd models.OrderStatusUpdate) error {
	if !CanTransition(order.OperationalStatus, upd.Status) {
		return fmt.Errorf("%w: %s -> %s", shipping.ErrInvalidTransition, order.OperationalStatus, upd.Status)
	}
	if err := o.store.UpdateOrderStatus(ctx, order.OrgID, order.ID, upd); err != nil {
		return err
	}
	order.OperationalStatus = upd.Status
	if upd.FulfillmentStatus != nil {
		order.FulfillmentStatus = *upd.FulfillmentStatus
	}
	switch {
	case upd.ClearShipped:
		order.ShippedAt, order.ShippedBy = nil, ""
	case upd.ShippedAt != nil:
		order.ShippedAt, order.ShippedBy = upd.ShippedAt, upd.ShippedBy
	}
	return nil
}

func strPtr(s string) *string { return &s }
