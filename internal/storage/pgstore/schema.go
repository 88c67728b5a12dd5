package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

// Migrate creates the tables and indexes if they do not exist.
func (s *Storage) Migrate(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS orders (
  org_id TEXT NOT NULL,
  id TEXT NOT NULL,
  order_number TEXT NOT NULL DEFAULT '',
  operational_status TEXT NOT NULL DEFAULT 'pending'
    CHECK (operational_status IN ('pending','packing','awaiting_pickup','shipped')),
  fulfillment_status TEXT NOT NULL DEFAULT 'unfulfilled',
  shipped_at TIMESTAMPTZ NULL,
  shipped_by TEXT NULL,
  ship_name TEXT NOT NULL DEFAULT '',
  ship_phone TEXT NOT NULL DEFAULT '',
  ship_email TEXT NOT NULL DEFAULT '',
  ship_address TEXT NOT NULL DEFAULT '',
  ship_city TEXT NOT NULL DEFAULT '',
  ship_department TEXT NOT NULL DEFAULT '',
  ship_postal_code TEXT NOT NULL DEFAULT '',
  total_price NUMERIC(14,2) NOT NULL DEFAULT 0,
  tags TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (org_id, id)
)`,
		`
CREATE TABLE IF NOT EXISTS shipping_labels (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  order_number TEXT NOT NULL DEFAULT '',
  carrier TEXT NOT NULL
    CHECK (carrier IN ('coordinadora','interrapidisimo','deprisa','other')),
  service TEXT NOT NULL DEFAULT '',
  tracking_number TEXT NULL,
  tracking_url TEXT NOT NULL DEFAULT '',
  label_url TEXT NOT NULL DEFAULT '',
  shipment_id TEXT NOT NULL DEFAULT '',
  price NUMERIC(14,2) NOT NULL DEFAULT 0,
  currency TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL
    CHECK (status IN ('created','error','cancelled','manual')),
  error_message TEXT NOT NULL DEFAULT '',
  destination_address TEXT NOT NULL DEFAULT '',
  destination_city TEXT NOT NULL DEFAULT '',
  destination_department TEXT NOT NULL DEFAULT '',
  postal_code TEXT NOT NULL DEFAULT '',
  recipient_name TEXT NOT NULL DEFAULT '',
  recipient_phone TEXT NOT NULL DEFAULT '',
  raw_response JSONB NULL,
  cancellation_trail JSONB NOT NULL DEFAULT '[]'::jsonb,
  created_by TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  cancelled_at TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipping_labels_org_order ON shipping_labels(org_id, order_id, created_at DESC)`,
		// At most one active label per order.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipping_labels_active ON shipping_labels(org_id, order_id) WHERE status IN ('created','manual')`,
		`
CREATE TABLE IF NOT EXISTS shipping_coverage (
  org_id TEXT NOT NULL,
  municipality TEXT NOT NULL,
  department TEXT NOT NULL DEFAULT '',
  coordinadora BOOLEAN NOT NULL DEFAULT false,
  interrapidisimo BOOLEAN NOT NULL DEFAULT false,
  deprisa BOOLEAN NOT NULL DEFAULT false,
  priority_carrier TEXT NULL,
  postal_code TEXT NOT NULL DEFAULT '',
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (org_id, municipality, department)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
