package pgstore

import (
	"context"
	"time"

	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// GetOrder returns the local projection of an order, or shipping.ErrOrderNotFound.
func (s *Storage) GetOrder(ctx context.Context, orgID, orderID string) (*models.Order, error) {
	var o models.Order
	var status, total, tags string
	var shippedBy *string
	err := s.db.QueryRow(ctx, `
SELECT
  id, org_id, order_number,
  operational_status, fulfillment_status, shipped_at, shipped_by,
  ship_name, ship_phone, ship_email, ship_address, ship_city, ship_department, ship_postal_code,
  total_price::text, tags,
  created_at, updated_at
FROM orders
WHERE org_id = $1 AND id = $2
`, orgID, orderID).Scan(
		&o.ID, &o.OrgID, &o.OrderNumber,
		&status, &o.FulfillmentStatus, &o.ShippedAt, &shippedBy,
		&o.ShippingAddress.Name, &o.ShippingAddress.Phone, &o.ShippingAddress.Email,
		&o.ShippingAddress.Street, &o.ShippingAddress.City, &o.ShippingAddress.Department,
		&o.ShippingAddress.PostalCode,
		&total, &tags,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrOrderNotFound
		}
		return nil, errors.Wrap(err, "select order")
	}

	o.OperationalStatus = models.OrderStatus(status)
	if shippedBy != nil {
		o.ShippedBy = *shippedBy
	}
	if t, err := decimal.NewFromString(total); err == nil {
		o.TotalPrice = t
	}
	o.Tags = shipping.ParseTags(tags)
	return &o, nil
}

// UpsertOrder inserts or refreshes the order fields synced from the platform.
// The operational columns are left untouched on conflict.
func (s *Storage) UpsertOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	status := o.OperationalStatus
	if status == "" {
		status = models.OrderStatusPending
	}
	fulfillment := o.FulfillmentStatus
	if fulfillment == "" {
		fulfillment = models.FulfillmentStatusUnfulfilled
	}

	_, err := s.db.Exec(ctx, `
INSERT INTO orders (
  org_id, id, order_number,
  operational_status, fulfillment_status,
  ship_name, ship_phone, ship_email, ship_address, ship_city, ship_department, ship_postal_code,
  total_price, tags, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13::numeric,$14,$15,$15)
ON CONFLICT (org_id, id)
DO UPDATE SET
  order_number = EXCLUDED.order_number,
  ship_name = EXCLUDED.ship_name,
  ship_phone = EXCLUDED.ship_phone,
  ship_email = EXCLUDED.ship_email,
  ship_address = EXCLUDED.ship_address,
  ship_city = EXCLUDED.ship_city,
  ship_department = EXCLUDED.ship_department,
  ship_postal_code = EXCLUDED.ship_postal_code,
  total_price = EXCLUDED.total_price,
  tags = EXCLUDED.tags,
  updated_at = EXCLUDED.updated_at
`,
		o.OrgID, o.ID, o.OrderNumber,
		string(status), fulfillment,
		o.ShippingAddress.Name, o.ShippingAddress.Phone, o.ShippingAddress.Email,
		o.ShippingAddress.Street, o.ShippingAddress.City, o.ShippingAddress.Department,
		o.ShippingAddress.PostalCode,
		o.TotalPrice.String(), shipping.JoinTags(o.Tags), now,
	)
	return errors.Wrap(err, "upsert order")
}

// UpdateOrderStatus writes the operational projection of an order.
func (s *Storage) UpdateOrderStatus(ctx context.Context, orgID, orderID string, u models.OrderStatusUpdate) error {
	var shippedBy *string
	if u.ShippedAt != nil && u.ShippedBy != "" {
		shippedBy = &u.ShippedBy
	}

	tag, err := s.db.Exec(ctx, `
UPDATE orders
SET operational_status = $3,
    fulfillment_status = COALESCE($4, fulfillment_status),
    shipped_at = CASE WHEN $7 THEN NULL WHEN $5::timestamptz IS NOT NULL THEN $5 ELSE shipped_at END,
    shipped_by = CASE WHEN $7 THEN NULL WHEN $5::timestamptz IS NOT NULL THEN $6 ELSE shipped_by END,
    updated_at = now()
WHERE org_id = $1 AND id = $2
`, orgID, orderID, string(u.Status), u.FulfillmentStatus, u.ShippedAt, shippedBy, u.ClearShipped)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if tag.RowsAffected() == 0 {
		return shipping.ErrOrderNotFound
	}
	return nil
}
