package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atelierops/fulfillment/internal/models"
	"github.com/atelierops/fulfillment/pkg/shipping"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const labelColumns = `
  id, org_id, order_id, order_number,
  carrier, service, COALESCE(tracking_number, ''), tracking_url, label_url, shipment_id,
  price::text, currency, status, error_message,
  destination_address, destination_city, destination_department, postal_code,
  recipient_name, recipient_phone,
  raw_response, cancellation_trail,
  created_by, created_at, updated_at, cancelled_at`

// FindActiveLabel returns the created or manual label of an order, or
// shipping.ErrLabelNotFound.
func (s *Storage) FindActiveLabel(ctx context.Context, orgID, orderID string) (*models.Label, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+labelColumns+`
FROM shipping_labels
WHERE org_id = $1 AND order_id = $2 AND status IN ('created','manual')
ORDER BY created_at DESC
LIMIT 1
`, orgID, orderID)
	return scanLabel(row)
}

// GetLabel returns a label by id within an organization.
func (s *Storage) GetLabel(ctx context.Context, orgID, labelID string) (*models.Label, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+labelColumns+`
FROM shipping_labels
WHERE org_id = $1 AND id = $2
`, orgID, labelID)
	return scanLabel(row)
}

// ListLabels returns every label of an order, newest first, error and
// cancelled rows included.
func (s *Storage) ListLabels(ctx context.Context, orgID, orderID string) ([]*models.Label, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+labelColumns+`
FROM shipping_labels
WHERE org_id = $1 AND order_id = $2
ORDER BY created_at DESC
`, orgID, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select labels")
	}
	defer rows.Close()

	var out []*models.Label
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// InsertLabel stores a new label. ID and timestamps are filled when empty.
// A second active label for the same order yields shipping.ErrLabelConflict.
func (s *Storage) InsertLabel(ctx context.Context, l *models.Label) error {
	now := time.Now().UTC()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	trail, err := json.Marshal(nonNilTrail(l.CancellationTrail))
	if err != nil {
		return errors.Wrap(err, "marshal cancellation trail")
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO shipping_labels (
  id, org_id, order_id, order_number,
  carrier, service, tracking_number, tracking_url, label_url, shipment_id,
  price, currency, status, error_message,
  destination_address, destination_city, destination_department, postal_code,
  recipient_name, recipient_phone,
  raw_response, cancellation_trail,
  created_by, created_at, updated_at
)
VALUES (
  $1,$2,$3,$4,
  $5,$6,NULLIF($7,''),$8,$9,$10,
  $11::numeric,$12,$13,$14,
  $15,$16,$17,$18,
  $19,$20,
  $21::jsonb,$22::jsonb,
  $23,$24,$25
)
`,
		l.ID, l.OrgID, l.OrderID, l.OrderNumber,
		string(l.Carrier), l.Service, l.TrackingNumber, l.TrackingURL, l.LabelURL, l.ShipmentID,
		l.Price.String(), l.Currency, string(l.Status), l.ErrorMessage,
		l.DestinationAddress, l.DestinationCity, l.DestinationDepartment, l.PostalCode,
		l.RecipientName, l.RecipientPhone,
		rawOrNil(l.RawResponse), string(trail),
		l.CreatedBy, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shipping.ErrLabelConflict
		}
		return errors.Wrap(err, "insert label")
	}
	return nil
}

// MarkLabelCancelled sets the label status to cancelled and appends entry
// to the cancellation trail. Prior trail entries are never rewritten.
func (s *Storage) MarkLabelCancelled(ctx context.Context, orgID, labelID string, entry models.CancellationEntry) error {
	item, err := json.Marshal([]models.CancellationEntry{entry})
	if err != nil {
		return errors.Wrap(err, "marshal cancellation entry")
	}

	tag, err := s.db.Exec(ctx, `
UPDATE shipping_labels
SET status = 'cancelled',
    cancelled_at = now(),
    updated_at = now(),
    cancellation_trail = cancellation_trail || $3::jsonb
WHERE org_id = $1 AND id = $2
`, orgID, labelID, string(item))
	if err != nil {
		return errors.Wrap(err, "cancel label")
	}
	if tag.RowsAffected() == 0 {
		return shipping.ErrLabelNotFound
	}
	return nil
}

// AppendCancellationTrail appends entry to the label's cancellation trail.
func (s *Storage) AppendCancellationTrail(ctx context.Context, orgID, labelID string, entry models.CancellationEntry) error {
	item, err := json.Marshal([]models.CancellationEntry{entry})
	if err != nil {
		return errors.Wrap(err, "marshal cancellation entry")
	}

	tag, err := s.db.Exec(ctx, `
UPDATE shipping_labels
SET cancellation_trail = cancellation_trail || $3::jsonb,
    updated_at = now()
WHERE org_id = $1 AND id = $2
`, orgID, labelID, string(item))
	if err != nil {
		return errors.Wrap(err, "append cancellation trail")
	}
	if tag.RowsAffected() == 0 {
		return shipping.ErrLabelNotFound
	}
	return nil
}

func scanLabel(row pgx.Row) (*models.Label, error) {
	var l models.Label
	var carrier, status, price string
	var raw, trail []byte
	if err := row.Scan(
		&l.ID, &l.OrgID, &l.OrderID, &l.OrderNumber,
		&carrier, &l.Service, &l.TrackingNumber, &l.TrackingURL, &l.LabelURL, &l.ShipmentID,
		&price, &l.Currency, &status, &l.ErrorMessage,
		&l.DestinationAddress, &l.DestinationCity, &l.DestinationDepartment, &l.PostalCode,
		&l.RecipientName, &l.RecipientPhone,
		&raw, &trail,
		&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt, &l.CancelledAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shipping.ErrLabelNotFound
		}
		return nil, errors.Wrap(err, "scan label")
	}

	l.Carrier = shipping.Carrier(carrier)
	l.Status = models.LabelStatus(status)
	if p, err := decimal.NewFromString(price); err == nil {
		l.Price = p
	}
	if len(raw) > 0 {
		l.RawResponse = json.RawMessage(raw)
	}
	if len(trail) > 0 {
		if err := json.Unmarshal(trail, &l.CancellationTrail); err != nil {
			return nil, errors.Wrap(err, "decode cancellation trail")
		}
	}
	return &l, nil
}

func nonNilTrail(trail []models.CancellationEntry) []models.CancellationEntry {
	if trail == nil {
		return []models.CancellationEntry{}
	}
	return trail
}

func rawOrNil(raw json.RawMessage) *string {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	s := string(raw)
	return &s
}
