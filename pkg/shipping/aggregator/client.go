// Package aggregator provides integration with the multi-carrier shipping
// aggregator used to generate and void labels for Coordinadora,
// Interrapidisimo and Deprisa.
package aggregator

import (
	"context"
	"errors"
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

const carrierAPIName = "aggregator"

// Config holds aggregator configuration.
type Config struct {
	APIKey         string
	BaseURL        string
	Timeout        time.Duration
	UseMock        bool // When true, uses mock API client
	DefaultService string
	Currency       string

	// Origin is the fixed warehouse address every label ships from.
	Origin shipping.Address
	// DefaultPackage is used unless the request overrides weight, value or content.
	DefaultPackage shipping.Package

	Breaker resilience.CircuitBreakerConfig
}

// Client is the aggregator label client.
// It implements the shipping.LabelProvider interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config             Config
	apiClient          APIClient
	logger             *otelzap.Logger
	tracer             trace.Tracer
	requireCredentials bool
}

// New creates a new aggregator client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client and every call fails with a
// configuration error while the API key is missing.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
			Breaker: cfg.Breaker,
			Logger:  logger,
		})
	}

	c := NewWithAPIClient(cfg, apiClient, logger, tracer)
	c.requireCredentials = !cfg.UseMock
	return c
}

// NewWithAPIClient creates a new aggregator client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(carrierAPIName)
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return carrierAPIName
}

// CreateLabel generates a label with the requested carrier.
func (c *Client) CreateLabel(ctx context.Context, req *shipping.LabelRequest) (*shipping.Label, error) {
	ctx, span := c.tracer.Start(ctx, "aggregator.CreateLabel", trace.WithAttributes(
		attribute.String("carrier", req.Carrier.String()),
		attribute.String("reference", req.Reference),
	))
	defer span.End()

	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	if !req.Carrier.IsKnown() {
		return nil, shipping.NewValidationError(carrierAPIName, "UNSUPPORTED_CARRIER",
			"carrier "+req.Carrier.String()+" is not available through the aggregator")
	}
	if strings.TrimSpace(req.Destination.City) == "" {
		return nil, shipping.NewValidationError(carrierAPIName, "MISSING_DESTINATION", "destination city is required")
	}

	c.logger.Ctx(ctx).Info("Creating carrier label",
		zap.String("carrier", req.Carrier.String()),
		zap.String("reference", req.Reference),
		zap.String("destination_city", req.Destination.City),
	)

	apiResp, err := c.apiClient.GenerateLabel(ctx, c.generateRequest(req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		c.logger.Ctx(ctx).Error("Aggregator API error", zap.String("carrier", req.Carrier.String()), zap.Error(err))
		return nil, err
	}
	if len(apiResp.Data) == 0 || apiResp.Data[0].TrackingNumber == "" {
		return nil, shipping.NewUpstreamError(carrierAPIName, "EMPTY_RESPONSE", "carrier returned no label").
			WithBody(string(apiResp.Raw))
	}

	label := generateResponseToLabel(apiResp, req.Carrier)
	span.SetAttributes(attribute.String("tracking_number", label.TrackingNumber))
	return label, nil
}

// CancelLabel voids a label. A rejection saying the label was already
// cancelled or delivered is reported through AlreadyCancelled, not as an error.
func (c *Client) CancelLabel(ctx context.Context, carrier shipping.Carrier, trackingNumber string) (*shipping.CancelLabelResult, error) {
	ctx, span := c.tracer.Start(ctx, "aggregator.CancelLabel", trace.WithAttributes(
		attribute.String("carrier", carrier.String()),
		attribute.String("tracking_number", trackingNumber),
	))
	defer span.End()

	if err := c.checkCredentials(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(trackingNumber) == "" {
		return nil, shipping.NewValidationError(carrierAPIName, "MISSING_TRACKING_NUMBER", "tracking number is required")
	}

	c.logger.Ctx(ctx).Info("Cancelling carrier label",
		zap.String("carrier", carrier.String()),
		zap.String("tracking_number", trackingNumber),
	)

	apiResp, err := c.apiClient.CancelLabel(ctx, &CancelRequest{
		Carrier:        carrier.String(),
		TrackingNumber: trackingNumber,
	})
	if err != nil {
		if msg, ok := alreadyCancelled(err); ok {
			c.logger.Ctx(ctx).Info("Label already cancelled at carrier",
				zap.String("tracking_number", trackingNumber),
				zap.String("carrier_message", msg),
			)
			return &shipping.CancelLabelResult{
				TrackingNumber:   trackingNumber,
				AlreadyCancelled: true,
				Raw:              rawOrString([]byte(msg)),
			}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancel failed")
		c.logger.Ctx(ctx).Error("Aggregator API error", zap.String("tracking_number", trackingNumber), zap.Error(err))
		return nil, err
	}

	return &shipping.CancelLabelResult{
		TrackingNumber:   trackingNumber,
		BalanceReturned:  apiResp.BalanceReturned(),
		AlreadyCancelled: apiResp.Error != nil && IsAlreadyCancelledMessage(apiResp.Error.Text()),
		Raw:              apiResp.Raw,
	}, nil
}

func (c *Client) checkCredentials() error {
	if c.requireCredentials && strings.TrimSpace(c.config.APIKey) == "" {
		return shipping.NewConfigurationError(carrierAPIName, "carrier API key is not configured")
	}
	return nil
}

// alreadyCancelled inspects a rejected cancellation for the carrier's
// "already cancelled/delivered" wording and returns the raw body when found.
func alreadyCancelled(err error) (string, bool) {
	var shippingErr *shipping.ShippingError
	if !errors.As(err, &shippingErr) || shippingErr.Kind != shipping.KindUpstream {
		return "", false
	}
	if IsAlreadyCancelledMessage(shippingErr.Message) || IsAlreadyCancelledMessage(shippingErr.Body) {
		if shippingErr.Body != "" {
			return shippingErr.Body, true
		}
		return shippingErr.Message, true
	}
	return "", false
}

// ============================================================================
// Conversion Helpers
// ============================================================================

func (c *Client) generateRequest(req *shipping.LabelRequest) *GenerateRequest {
	pkg := c.config.DefaultPackage
	if req.Weight > 0 {
		pkg.Weight = req.Weight
	}
	if req.DeclaredValue.IsPositive() {
		pkg.DeclaredValue = req.DeclaredValue
	}
	if req.Content != "" {
		pkg.Content = req.Content
	}

	service := req.Service
	if service == "" {
		service = c.config.DefaultService
	}
	currency := c.config.Currency
	if currency == "" {
		currency = "COP"
	}

	return &GenerateRequest{
		Origin:      addressToLocation(c.config.Origin),
		Destination: addressToLocation(req.Destination),
		Packages:    []Package{packageToAPI(pkg)},
		Shipment: ShipmentSpec{
			Carrier: req.Carrier.String(),
			Service: service,
			Type:    1,
		},
		Settings: Settings{
			PrintFormat: "PDF",
			PrintSize:   "STOCK_4X6",
			Currency:    currency,
			Comments:    req.Reference,
		},
	}
}

func addressToLocation(addr shipping.Address) Location {
	country := addr.Country
	if country == "" {
		country = "CO"
	}
	return Location{
		Name:       addr.Name,
		Company:    addr.Company,
		Email:      addr.Email,
		Phone:      addr.Phone,
		Street:     addr.Street,
		Number:     addr.Number,
		District:   addr.District,
		City:       addr.City,
		State:      addr.Department,
		Country:    country,
		PostalCode: addr.PostalCode,
		Reference:  addr.Reference,
		Identifier: addr.Identifier,
	}
}

func packageToAPI(pkg shipping.Package) Package {
	declared, _ := pkg.DeclaredValue.Float64()
	return Package{
		Type:          "box",
		Content:       pkg.Content,
		Amount:        1,
		DeclaredValue: declared,
		LengthUnit:    "CM",
		WeightUnit:    "KG",
		Weight:        pkg.Weight,
		Dimensions: Dimensions{
			Length: pkg.Length,
			Width:  pkg.Width,
			Height: pkg.Height,
		},
	}
}

func generateResponseToLabel(resp *GenerateResponse, requested shipping.Carrier) *shipping.Label {
	item := resp.Data[0]

	carrier := shipping.ParseCarrier(item.Carrier)
	if !carrier.IsKnown() {
		carrier = requested
	}

	return &shipping.Label{
		Carrier:        carrier,
		Service:        item.Service,
		TrackingNumber: item.TrackingNumber,
		TrackingURL:    item.TrackURL,
		LabelURL:       item.Label,
		ShipmentID:     string(item.ShipmentID),
		Price:          decimal.NewFromFloat(item.TotalPrice),
		Currency:       item.Currency,
		Raw:            resp.Raw,
	}
}

// Ensure Client implements shipping.LabelProvider
var _ shipping.LabelProvider = (*Client)(nil)
