package shipping

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Carrier identifies a last-mile carrier reachable through the aggregator.
type Carrier string

const (
	CarrierCoordinadora    Carrier = "coordinadora"
	CarrierInterrapidisimo Carrier = "interrapidisimo"
	CarrierDeprisa         Carrier = "deprisa"
	CarrierOther           Carrier = "other"
)

// DefaultCarrier is used when nothing else selects a carrier.
const DefaultCarrier = CarrierCoordinadora

// CarrierPrecedence is the order in which coverage flags are consulted.
var CarrierPrecedence = []Carrier{
	CarrierCoordinadora,
	CarrierInterrapidisimo,
	CarrierDeprisa,
}

// ParseCarrier maps free text to a Carrier. Unknown values map to CarrierOther.
func ParseCarrier(s string) Carrier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coordinadora":
		return CarrierCoordinadora
	case "interrapidisimo", "inter rapidisimo", "interrapidísimo":
		return CarrierInterrapidisimo
	case "deprisa":
		return CarrierDeprisa
	default:
		return CarrierOther
	}
}

// IsKnown reports whether the carrier is one of the aggregator carriers.
func (c Carrier) IsKnown() bool {
	switch c {
	case CarrierCoordinadora, CarrierInterrapidisimo, CarrierDeprisa:
		return true
	default:
		return false
	}
}

func (c Carrier) String() string {
	return string(c)
}

// DisplayName is the company name shown to customers in tracking details.
func (c Carrier) DisplayName() string {
	switch c {
	case CarrierCoordinadora:
		return "Coordinadora"
	case CarrierInterrapidisimo:
		return "Interrapidisimo"
	case CarrierDeprisa:
		return "Deprisa"
	default:
		return "Other"
	}
}

// FulfillmentOrderStatus is the platform-side status of a fulfillment order.
type FulfillmentOrderStatus string

const (
	FulfillmentOrderOpen           FulfillmentOrderStatus = "open"
	FulfillmentOrderInProgress     FulfillmentOrderStatus = "in_progress"
	FulfillmentOrderScheduled      FulfillmentOrderStatus = "scheduled"
	FulfillmentOrderReadyForPickup FulfillmentOrderStatus = "ready_for_pickup"
	FulfillmentOrderClosed         FulfillmentOrderStatus = "closed"
	FulfillmentOrderCancelled      FulfillmentOrderStatus = "cancelled"
	FulfillmentOrderIncomplete     FulfillmentOrderStatus = "incomplete"
	FulfillmentOrderOnHold         FulfillmentOrderStatus = "on_hold"
)

// ParseFulfillmentOrderStatus normalizes REST ("in_progress") and GraphQL
// ("IN_PROGRESS") spellings.
func ParseFulfillmentOrderStatus(s string) FulfillmentOrderStatus {
	return FulfillmentOrderStatus(strings.ToLower(strings.TrimSpace(s)))
}

// IsOpen reports whether a new shipment can start from this status.
func (s FulfillmentOrderStatus) IsOpen() bool {
	return s == FulfillmentOrderOpen || s == FulfillmentOrderInProgress
}

// IsPickupCollectable reports whether a pre-notified pickup can be completed.
func (s FulfillmentOrderStatus) IsPickupCollectable() bool {
	switch s {
	case FulfillmentOrderScheduled, FulfillmentOrderReadyForPickup,
		FulfillmentOrderInProgress, FulfillmentOrderOpen:
		return true
	default:
		return false
	}
}

// IsClosed reports whether the fulfillment order was already fulfilled.
func (s FulfillmentOrderStatus) IsClosed() bool {
	return s == FulfillmentOrderClosed
}

// Address represents a postal address.
type Address struct {
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street,omitempty"`
	Number     string `json:"number,omitempty"`
	District   string `json:"district,omitempty"`
	City       string `json:"city,omitempty"`
	Department string `json:"department,omitempty"` // Colombian "departamento", state-level code or name
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"` // ISO 3166-1 alpha-2
	Reference  string `json:"reference,omitempty"`
	Identifier string `json:"identifier,omitempty"` // tax or national id of the sender
}

// Package represents a parcel.
type Package struct {
	Content       string
	Length        float64 // cm
	Width         float64 // cm
	Height        float64 // cm
	Weight        float64 // kg
	DeclaredValue decimal.Decimal
}

// LabelRequest is the request for generating a carrier label.
type LabelRequest struct {
	Reference   string // order number printed on the label
	Carrier     Carrier
	Service     string
	Destination Address

	// Overrides of the default package. Zero values keep the defaults.
	Weight        float64
	DeclaredValue decimal.Decimal
	Content       string
}

// Label is the carrier's answer to a successful label generation.
type Label struct {
	Carrier        Carrier
	Service        string
	TrackingNumber string
	TrackingURL    string
	LabelURL       string
	ShipmentID     string
	Price          decimal.Decimal
	Currency       string
	Raw            json.RawMessage
}

// CancelLabelResult is the carrier's answer to a cancellation.
type CancelLabelResult struct {
	TrackingNumber   string
	BalanceReturned  bool
	AlreadyCancelled bool
	Raw              json.RawMessage
}

// PlatformOrder is the platform's view of an order, enough to ship it.
type PlatformOrder struct {
	ID                string
	Number            string // human order number, without the "#" prefix
	ShippingAddress   Address
	TotalPrice        decimal.Decimal
	Tags              []string
	FulfillmentStatus string // "unfulfilled" when the platform reports none
}

// FulfillmentOrderLineItem is one line of a fulfillment order.
type FulfillmentOrderLineItem struct {
	ID       string
	Quantity int
}

// FulfillmentOrder is the platform's "this needs to ship" record.
type FulfillmentOrder struct {
	ID                   string
	OrderID              string
	Status               FulfillmentOrderStatus
	RequestStatus        string
	AssignedLocationName string
	LineItems            []FulfillmentOrderLineItem
}

// Fulfillment is the platform's record that something was dispatched.
type Fulfillment struct {
	ID              string
	OrderID         string
	Status          string
	TrackingNumber  string
	TrackingCompany string
	CreatedAt       time.Time
}

// IsCancelled reports whether the fulfillment no longer counts as dispatched.
func (f Fulfillment) IsCancelled() bool {
	return strings.EqualFold(f.Status, "cancelled")
}

// TrackingInfo is attached to fulfillments created after a carrier label exists.
type TrackingInfo struct {
	Number  string
	Company string
	URL     string
}

// CreateFulfillmentRequest is the request for fulfilling a fulfillment order.
type CreateFulfillmentRequest struct {
	FulfillmentOrderID string
	NotifyCustomer     bool
	Tracking           *TrackingInfo // nil for pickup fulfillments
	Message            string
}

// FulfillmentCancelAttempt records the outcome of one fulfillment cancellation.
type FulfillmentCancelAttempt struct {
	FulfillmentID string `json:"fulfillmentId"`
	Cancelled     bool   `json:"cancelled"`
	Error         string `json:"error,omitempty"`
}
