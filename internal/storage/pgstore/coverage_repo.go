package pgstore

import (
	"context"
	"time"

	"github.com/atelierops/fulfillment/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ListCoverage returns every coverage row of an organization.
func (s *Storage) ListCoverage(ctx context.Context, orgID string) ([]models.Coverage, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  org_id, municipality, department,
  coordinadora, interrapidisimo, deprisa,
  COALESCE(priority_carrier, ''), postal_code, updated_at
FROM shipping_coverage
WHERE org_id = $1
ORDER BY municipality, department
`, orgID)
	if err != nil {
		return nil, errors.Wrap(err, "select coverage")
	}
	defer rows.Close()

	out := make([]models.Coverage, 0)
	for rows.Next() {
		var c models.Coverage
		if err := rows.Scan(
			&c.OrgID, &c.Municipality, &c.Department,
			&c.Coordinadora, &c.Interrapidisimo, &c.Deprisa,
			&c.PriorityCarrier, &c.PostalCode, &c.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan coverage")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpsertCoverage writes coverage rows in one transaction.
func (s *Storage) UpsertCoverage(ctx context.Context, items []models.Coverage) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range items {
		_, err := tx.Exec(ctx, `
INSERT INTO shipping_coverage (
  org_id, municipality, department,
  coordinadora, interrapidisimo, deprisa,
  priority_carrier, postal_code, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)
ON CONFLICT (org_id, municipality, department)
DO UPDATE SET
  coordinadora = EXCLUDED.coordinadora,
  interrapidisimo = EXCLUDED.interrapidisimo,
  deprisa = EXCLUDED.deprisa,
  priority_carrier = EXCLUDED.priority_carrier,
  postal_code = EXCLUDED.postal_code,
  updated_at = EXCLUDED.updated_at
`, c.OrgID, c.Municipality, c.Department,
			c.Coordinadora, c.Interrapidisimo, c.Deprisa,
			c.PriorityCarrier, c.PostalCode, now)
		if err != nil {
			return errors.Wrap(err, "upsert coverage")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
