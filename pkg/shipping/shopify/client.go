// Package shopify provides integration with the Shopify Admin API for the
// fulfillment side of an order: fulfillment orders, fulfillments and tags.
package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atelierops/fulfillment/internal/resilience"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/shopspring/decimal"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	platformName = "shopify"

	// DefaultAPIVersion is the Admin API version used when none is configured.
	DefaultAPIVersion = "2024-10"
)

// Config holds Shopify configuration.
type Config struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	UseGraphQL  bool // create fulfillments through the fulfillmentCreate mutation
	UseMock     bool // When true, uses mock API client
	Timeout     time.Duration
	Breaker     resilience.CircuitBreakerConfig
}

// Client is the Shopify fulfillment client.
// It implements the shipping.FulfillmentPlatform interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config             Config
	apiClient          APIClient
	logger             *otelzap.Logger
	tracer             trace.Tracer
	requireCredentials bool
}

// New creates a new Shopify client.
// If cfg.UseMock is true, it uses an in-memory mock API client.
// Otherwise every call fails with a configuration error while the shop
// domain or access token is missing.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			ShopDomain:  cfg.ShopDomain,
			APIVersion:  cfg.APIVersion,
			AccessToken: cfg.AccessToken,
			UseGraphQL:  cfg.UseGraphQL,
			Timeout:     cfg.Timeout,
			Breaker:     cfg.Breaker,
			Logger:      logger,
		})
	}

	c := NewWithAPIClient(cfg, apiClient, logger, tracer)
	c.requireCredentials = !cfg.UseMock
	return c
}

// NewWithAPIClient creates a new Shopify client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(platformName)
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the platform name.
func (c *Client) Name() string {
	return platformName
}

// GetOrder reads an order with its shipping address. A 404 from Shopify is
// reported as shipping.ErrOrderNotFound.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*shipping.PlatformOrder, error) {
	ctx, span := c.tracer.Start(ctx, "shopify.GetOrder", trace.WithAttributes(
		attribute.String("order_id", orderID),
	))
	defer span.End()

	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	apiOrder, err := c.apiClient.GetOrder(ctx, orderID)
	if err != nil {
		var se *shipping.ShippingError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("shopify order %s: %w", orderID, shipping.ErrOrderNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "get order failed")
		c.logger.Ctx(ctx).Error("Shopify API error", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}

	order, err := orderToShipping(apiOrder, orderID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return order, nil
}

// ListFulfillmentOrders returns the fulfillment orders of an order.
func (c *Client) ListFulfillmentOrders(ctx context.Context, orderID string) ([]shipping.FulfillmentOrder, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	apiOrders, err := c.apiClient.ListFulfillmentOrders(ctx, orderID)
	if err != nil {
		c.logger.Ctx(ctx).Error("Shopify API error", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}

	orders := make([]shipping.FulfillmentOrder, 0, len(apiOrders))
	for _, fo := range apiOrders {
		orders = append(orders, fulfillmentOrderToShipping(fo, orderID))
	}
	return orders, nil
}

// CreateFulfillment fulfills a fulfillment order and returns the fulfillment id.
// Shipments with tracking never notify the customer.
func (c *Client) CreateFulfillment(ctx context.Context, req *shipping.CreateFulfillmentRequest) (string, error) {
	ctx, span := c.tracer.Start(ctx, "shopify.CreateFulfillment", trace.WithAttributes(
		attribute.String("fulfillment_order_id", req.FulfillmentOrderID),
		attribute.Bool("with_tracking", req.Tracking != nil),
	))
	defer span.End()

	if err := c.checkCredentials(); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.FulfillmentOrderID) == "" {
		return "", shipping.NewValidationError(platformName, "MISSING_FULFILLMENT_ORDER", "fulfillment order id is required")
	}

	input := &FulfillmentInput{
		FulfillmentOrderID: req.FulfillmentOrderID,
		NotifyCustomer:     req.NotifyCustomer,
		Message:            req.Message,
	}
	if req.Tracking != nil {
		input.NotifyCustomer = false
		input.Tracking = &TrackingInput{
			Number:  req.Tracking.Number,
			Company: req.Tracking.Company,
			URL:     req.Tracking.URL,
		}
	}

	c.logger.Ctx(ctx).Info("Creating Shopify fulfillment",
		zap.String("fulfillment_order_id", req.FulfillmentOrderID),
		zap.Bool("notify_customer", input.NotifyCustomer),
		zap.Bool("with_tracking", input.Tracking != nil),
	)

	fulfillment, err := c.apiClient.CreateFulfillment(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create fulfillment failed")
		c.logger.Ctx(ctx).Error("Shopify API error",
			zap.String("fulfillment_order_id", req.FulfillmentOrderID),
			zap.Error(err),
		)
		return "", err
	}
	return string(fulfillment.ID), nil
}

// CancelOrderFulfillments cancels, one at a time and in the platform's order,
// every fulfillment of the order that is not already cancelled. A failed
// attempt is recorded and the loop moves on.
func (c *Client) CancelOrderFulfillments(ctx context.Context, orderID string) ([]shipping.FulfillmentCancelAttempt, error) {
	ctx, span := c.tracer.Start(ctx, "shopify.CancelOrderFulfillments", trace.WithAttributes(
		attribute.String("order_id", orderID),
	))
	defer span.End()

	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	fulfillments, err := c.apiClient.ListFulfillments(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		c.logger.Ctx(ctx).Error("Failed to list Shopify fulfillments", zap.String("order_id", orderID), zap.Error(err))
		return nil, err
	}

	var attempts []shipping.FulfillmentCancelAttempt
	for _, f := range fulfillments {
		if strings.EqualFold(f.Status, "cancelled") {
			continue
		}

		attempt := shipping.FulfillmentCancelAttempt{FulfillmentID: string(f.ID)}
		if _, err := c.apiClient.CancelFulfillment(ctx, string(f.ID)); err != nil {
			attempt.Error = err.Error()
			c.logger.Ctx(ctx).Warn("Failed to cancel Shopify fulfillment",
				zap.String("order_id", orderID),
				zap.String("fulfillment_id", string(f.ID)),
				zap.Error(err),
			)
		} else {
			attempt.Cancelled = true
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

// GetTags reads the order tags.
func (c *Client) GetTags(ctx context.Context, orderID string) ([]string, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	raw, err := c.apiClient.GetOrderTags(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return shipping.ParseTags(raw), nil
}

// SetTags replaces the order tags.
func (c *Client) SetTags(ctx context.Context, orderID string, tags []string) error {
	if err := c.checkCredentials(); err != nil {
		return err
	}
	return c.apiClient.UpdateOrderTags(ctx, orderID, shipping.JoinTags(tags))
}

// AddTags reads the current tags, merges toAdd and writes them back only
// when something changed. It returns the resulting tags.
func (c *Client) AddTags(ctx context.Context, orderID string, toAdd ...string) ([]string, error) {
	current, err := c.GetTags(ctx, orderID)
	if err != nil {
		return nil, err
	}

	merged := shipping.MergeTags(current, toAdd)
	if shipping.SameTags(current, merged) {
		return merged, nil
	}

	c.logger.Ctx(ctx).Info("Updating Shopify order tags",
		zap.String("order_id", orderID),
		zap.Strings("added", toAdd),
	)
	if err := c.SetTags(ctx, orderID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// RemoveTagsFromOrder reads the current tags, drops toRemove and writes them
// back only when something changed. It returns the resulting tags.
func (c *Client) RemoveTagsFromOrder(ctx context.Context, orderID string, toRemove ...string) ([]string, error) {
	current, err := c.GetTags(ctx, orderID)
	if err != nil {
		return nil, err
	}

	remaining := shipping.RemoveTags(current, toRemove)
	if len(remaining) == len(current) {
		return remaining, nil
	}

	c.logger.Ctx(ctx).Info("Updating Shopify order tags",
		zap.String("order_id", orderID),
		zap.Strings("removed", toRemove),
	)
	if err := c.SetTags(ctx, orderID, remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

func (c *Client) checkCredentials() error {
	if !c.requireCredentials {
		return nil
	}
	if strings.TrimSpace(c.config.ShopDomain) == "" || strings.TrimSpace(c.config.AccessToken) == "" {
		return shipping.NewConfigurationError(platformName, "shopify shop domain or access token is not configured")
	}
	return nil
}

// ============================================================================
// Conversion Helpers
// ============================================================================

func orderToShipping(o *Order, orderID string) (*shipping.PlatformOrder, error) {
	out := &shipping.PlatformOrder{
		ID:                string(o.ID),
		Number:            strings.TrimPrefix(strings.TrimSpace(o.Name), "#"),
		Tags:              shipping.ParseTags(o.Tags),
		FulfillmentStatus: "unfulfilled",
	}
	if out.ID == "" {
		out.ID = orderID
	}
	if o.OrderNumber > 0 {
		out.Number = strconv.FormatInt(o.OrderNumber, 10)
	}
	if o.FulfillmentStatus != nil && *o.FulfillmentStatus != "" {
		out.FulfillmentStatus = *o.FulfillmentStatus
	}

	if strings.TrimSpace(o.TotalPrice) != "" {
		price, err := decimal.NewFromString(o.TotalPrice)
		if err != nil {
			return nil, shipping.NewUpstreamError(platformName, "DECODE_ERROR", "invalid order total_price").
				WithCause(err).WithBody(o.TotalPrice)
		}
		out.TotalPrice = price
	}

	out.ShippingAddress.Email = o.Email
	out.ShippingAddress.Phone = o.Phone
	if a := o.ShippingAddress; a != nil {
		out.ShippingAddress.Name = a.Name
		out.ShippingAddress.Company = a.Company
		out.ShippingAddress.Street = a.Address1
		out.ShippingAddress.Reference = a.Address2
		out.ShippingAddress.City = a.City
		out.ShippingAddress.Department = a.Province
		out.ShippingAddress.PostalCode = a.Zip
		out.ShippingAddress.Country = a.CountryCode
		if out.ShippingAddress.Department == "" {
			out.ShippingAddress.Department = a.ProvinceCode
		}
		if a.Phone != "" {
			out.ShippingAddress.Phone = a.Phone
		}
	}
	return out, nil
}

func fulfillmentOrderToShipping(fo FulfillmentOrder, orderID string) shipping.FulfillmentOrder {
	out := shipping.FulfillmentOrder{
		ID:            string(fo.ID),
		OrderID:       string(fo.OrderID),
		Status:        shipping.ParseFulfillmentOrderStatus(fo.Status),
		RequestStatus: fo.RequestStatus,
		LineItems:     make([]shipping.FulfillmentOrderLineItem, 0, len(fo.LineItems)),
	}
	if out.OrderID == "" {
		out.OrderID = orderID
	}
	if fo.AssignedLocation != nil {
		out.AssignedLocationName = fo.AssignedLocation.Name
	}
	for _, li := range fo.LineItems {
		out.LineItems = append(out.LineItems, shipping.FulfillmentOrderLineItem{
			ID:       string(li.ID),
			Quantity: li.Quantity,
		})
	}
	return out
}

// Ensure Client implements shipping.FulfillmentPlatform
var _ shipping.FulfillmentPlatform = (*Client)(nil)
