package models

import (
	"time"

	"github.com/atelierops/fulfillment/pkg/shipping"
)

// Coverage is the per-municipality carrier reference data of an organization.
type Coverage struct {
	OrgID           string    `json:"org_id" yaml:"-"`
	Municipality    string    `json:"municipality" yaml:"municipality"`
	Department      string    `json:"department" yaml:"department"`
	Coordinadora    bool      `json:"coordinadora" yaml:"coordinadora"`
	Interrapidisimo bool      `json:"interrapidisimo" yaml:"interrapidisimo"`
	Deprisa         bool      `json:"deprisa" yaml:"deprisa"`
	PriorityCarrier string    `json:"priority_carrier,omitempty" yaml:"priority_carrier,omitempty"`
	PostalCode      string    `json:"postal_code" yaml:"postal_code"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// Serves reports whether the row's flag for carrier is set.
func (c Coverage) Serves(carrier shipping.Carrier) bool {
	switch carrier {
	case shipping.CarrierCoordinadora:
		return c.Coordinadora
	case shipping.CarrierInterrapidisimo:
		return c.Interrapidisimo
	case shipping.CarrierDeprisa:
		return c.Deprisa
	default:
		return false
	}
}
