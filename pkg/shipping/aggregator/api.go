package aggregator

import (
	"context"
	"encoding/json"
	"strings"
)

// APIClient defines the interface for carrier aggregator API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// GenerateLabel creates a shipment and its label: POST /ship/generate
	GenerateLabel(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// CancelLabel voids a label: POST /ship/cancel
	CancelLabel(ctx context.Context, req *CancelRequest) (*CancelResponse, error)
}

// ============================================================================
// API Request/Response Types
// ============================================================================

// GenerateRequest represents a label generation request.
type GenerateRequest struct {
	Origin      Location     `json:"origin"`
	Destination Location     `json:"destination"`
	Packages    []Package    `json:"packages"`
	Shipment    ShipmentSpec `json:"shipment"`
	Settings    Settings     `json:"settings"`
}

// Location represents origin or destination.
type Location struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	Number     string `json:"number,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Identifier string `json:"identificationNumber,omitempty"`
}

// Package represents a single parcel.
type Package struct {
	Type          string     `json:"type"` // "box", "envelope"
	Content       string     `json:"content"`
	Amount        int        `json:"amount"`
	DeclaredValue float64    `json:"declaredValue"`
	LengthUnit    string     `json:"lengthUnit"` // "CM"
	WeightUnit    string     `json:"weightUnit"` // "KG"
	Weight        float64    `json:"weight"`
	Dimensions    Dimensions `json:"dimensions"`
}

// Dimensions of a parcel.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ShipmentSpec selects carrier and service.
type ShipmentSpec struct {
	Carrier string `json:"carrier"`
	Service string `json:"service"`
	Type    int    `json:"type"` // 1 = parcel
}

// Settings controls the printed label.
type Settings struct {
	PrintFormat string `json:"printFormat"` // "PDF"
	PrintSize   string `json:"printSize"`   // "STOCK_4X6"
	Currency    string `json:"currency"`
	Comments    string `json:"comments,omitempty"`
}

// GenerateResponse represents the generate envelope.
type GenerateResponse struct {
	Meta  string          `json:"meta"`
	Data  []GeneratedItem `json:"data"`
	Error *EnvelopeError  `json:"error,omitempty"`

	// Raw keeps the undecoded body for the audit trail.
	Raw json.RawMessage `json:"-"`
}

// GeneratedItem is one generated label.
type GeneratedItem struct {
	Carrier        string  `json:"carrier"`
	Service        string  `json:"service"`
	TrackingNumber string  `json:"trackingNumber"`
	TrackURL       string  `json:"trackUrl"`
	Label          string  `json:"label"`
	ShipmentID     FlexID  `json:"shipmentId"`
	TotalPrice     float64 `json:"totalPrice"`
	Currency       string  `json:"currency"`
}

// CancelRequest represents a label cancellation request.
type CancelRequest struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"trackingNumber"`
}

// CancelResponse represents the cancel envelope.
type CancelResponse struct {
	Meta    string          `json:"meta"`
	Success *bool           `json:"success,omitempty"`
	Data    []CancelledItem `json:"data"`
	Error   *EnvelopeError  `json:"error,omitempty"`

	// StatusCode is the HTTP status the envelope arrived with.
	StatusCode int `json:"-"`
	// Raw keeps the undecoded body for the audit trail.
	Raw json.RawMessage `json:"-"`
}

// CancelledItem is one cancelled label.
type CancelledItem struct {
	Carrier           string `json:"carrier"`
	Service           string `json:"service"`
	TrackingNumber    string `json:"trackingNumber"`
	BalanceReturned   bool   `json:"balanceReturned"`
	BalanceReturnDate string `json:"balanceReturnDate,omitempty"`
}

// Succeeded applies the aggregator's inconsistent success signalling: any of
// a 2xx status, a non-empty data array or an explicit success marker is enough.
func (r *CancelResponse) Succeeded() bool {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return true
	}
	if len(r.Data) > 0 {
		return true
	}
	return r.Success != nil && *r.Success
}

// BalanceReturned reports whether any cancelled item returned the balance.
func (r *CancelResponse) BalanceReturned() bool {
	for _, item := range r.Data {
		if item.BalanceReturned {
			return true
		}
	}
	return false
}

// EnvelopeError is the aggregator's error body.
type EnvelopeError struct {
	Code        FlexID `json:"code"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

// Text returns the most specific human-readable message.
func (e *EnvelopeError) Text() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if e.Message != "" && e.Message != e.Description {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, ": ")
}

// FlexID decodes identifiers the aggregator sends either as numbers or strings.
type FlexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

// alreadyCancelledHints are fragments the aggregator uses when a label cannot
// be cancelled because it already was, or because the parcel was delivered.
var alreadyCancelledHints = []string{
	"already cancel",
	"already canceled",
	"already delivered",
	"ya fue cancelad",
	"ya se encuentra cancelad",
	"ya está cancelad",
	"ya esta cancelad",
	"cancelada previamente",
	"fue entregad",
	"entregado",
}

// IsAlreadyCancelledMessage reports whether msg says the label needs no cancellation.
func IsAlreadyCancelledMessage(msg string) bool {
	low := strings.ToLower(msg)
	for _, hint := range alreadyCancelledHints {
		if strings.Contains(low, hint) {
			return true
		}
	}
	return false
}
