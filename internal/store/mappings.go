package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billbackhq/billback-api/internal/models"
)

// Mappings persists the charge code mapping table. Resolution precedence
// (exact over wildcard) lives in the resolver service; this layer is plain
// last-write-wins storage.
type Mappings struct {
	db *pgxpool.Pool
}

func NewMappings(db *pgxpool.Pool) *Mappings {
	return &Mappings{db: db}
}

// List returns the full mapping table in key order.
func (s *Mappings) List(ctx context.Context) ([]models.ChargeCodeMapping, error) {
	rows, err := s.db.Query(ctx, `
		SELECT property_id, gl_code, charge_code, utility_name, is_billable, updated_at
		FROM charge_code_mappings
		ORDER BY property_id, gl_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := []models.ChargeCodeMapping{}
	for rows.Next() {
		var m models.ChargeCodeMapping
		if err := rows.Scan(&m.PropertyID, &m.GLCode, &m.ChargeCode, &m.UtilityName, &m.IsBillable, &m.UpdatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// Put upserts mapping rows; the last write for a (property_id, gl_code) key
// wins.
func (s *Mappings) Put(ctx context.Context, mappings []models.ChargeCodeMapping) error {
	for _, m := range mappings {
		_, err := s.db.Exec(ctx, `
			INSERT INTO charge_code_mappings (property_id, gl_code, charge_code, utility_name, is_billable, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (property_id, gl_code) DO UPDATE SET
				charge_code  = EXCLUDED.charge_code,
				utility_name = EXCLUDED.utility_name,
				is_billable  = EXCLUDED.is_billable,
				updated_at   = now()`,
			m.PropertyID, m.GLCode, m.ChargeCode, m.UtilityName, m.IsBillable)
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete removes one mapping row.
func (s *Mappings) Delete(ctx context.Context, propertyID, glCode string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM charge_code_mappings WHERE property_id = $1 AND gl_code = $2`,
		propertyID, glCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
