package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnGenerateLabel func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	OnCancelLabel   func(ctx context.Context, req *CancelRequest) (*CancelResponse, error)

	GenerateCalls int
	CancelCalls   int
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// GenerateLabel returns a mock label.
func (m *MockAPIClient) GenerateLabel(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	m.GenerateCalls++

	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, shipping.NewUpstreamError(carrierAPIName, "MOCK_ERROR", "Simulated API error").WithStatusCode(500)
	}

	if m.OnGenerateLabel != nil {
		return m.OnGenerateLabel(ctx, req)
	}

	trackingNumber := fmt.Sprintf("%d", 10000000000+time.Now().UnixNano()%90000000000)
	item := GeneratedItem{
		Carrier:        req.Shipment.Carrier,
		Service:        req.Shipment.Service,
		TrackingNumber: trackingNumber,
		TrackURL:       "https://envia.com/rastreo?label=" + trackingNumber,
		Label:          fmt.Sprintf("https://s3.mock-aggregator.test/labels/%s.pdf", trackingNumber),
		ShipmentID:     FlexID("mock-" + uuid.New().String()[:8]),
		TotalPrice:     12500,
		Currency:       "COP",
	}

	resp := &GenerateResponse{Meta: "generate", Data: []GeneratedItem{item}}
	raw, _ := json.Marshal(resp)
	resp.Raw = raw
	return resp, nil
}

// CancelLabel cancels a mock label.
func (m *MockAPIClient) CancelLabel(ctx context.Context, req *CancelRequest) (*CancelResponse, error) {
	m.CancelCalls++

	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, shipping.NewUpstreamError(carrierAPIName, "MOCK_ERROR", "Simulated API error").WithStatusCode(500)
	}

	if m.OnCancelLabel != nil {
		return m.OnCancelLabel(ctx, req)
	}

	resp := &CancelResponse{
		Meta:       "cancel",
		StatusCode: 200,
		Data: []CancelledItem{{
			Carrier:         strings.ToLower(req.Carrier),
			TrackingNumber:  req.TrackingNumber,
			BalanceReturned: true,
		}},
	}
	raw, _ := json.Marshal(resp)
	resp.Raw = raw
	return resp, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
