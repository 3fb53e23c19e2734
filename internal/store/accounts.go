package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billbackhq/billback-api/internal/models"
)

// Accounts persists per-(vendor, account, property) tracking and UBI flags.
type Accounts struct {
	db *pgxpool.Pool
}

func NewAccounts(db *pgxpool.Pool) *Accounts {
	return &Accounts{db: db}
}

// Upsert creates or updates a flag row. Nil flag pointers leave the stored
// value untouched, so is_tracked and is_ubi stay independently settable.
func (s *Accounts) Upsert(ctx context.Context, vendorID, accountNumber, propertyID string, isTracked, isUBI *bool) (*models.AccountFlag, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO account_flags (vendor_id, account_number, property_id, is_tracked, is_ubi, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, FALSE), COALESCE($5, FALSE), now())
		ON CONFLICT (vendor_id, account_number, property_id) DO UPDATE SET
			is_tracked = COALESCE($4, account_flags.is_tracked),
			is_ubi     = COALESCE($5, account_flags.is_ubi),
			updated_at = now()
		RETURNING vendor_id, account_number, property_id, is_tracked, is_ubi, updated_at`,
		vendorID, accountNumber, propertyID, isTracked, isUBI)

	var af models.AccountFlag
	err := row.Scan(&af.VendorID, &af.AccountNumber, &af.PropertyID, &af.IsTracked, &af.IsUBI, &af.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &af, nil
}

// Get fetches one flag row.
func (s *Accounts) Get(ctx context.Context, vendorID, accountNumber, propertyID string) (*models.AccountFlag, error) {
	row := s.db.QueryRow(ctx, `
		SELECT vendor_id, account_number, property_id, is_tracked, is_ubi, updated_at
		FROM account_flags
		WHERE vendor_id = $1 AND account_number = $2 AND property_id = $3`,
		vendorID, accountNumber, propertyID)

	var af models.AccountFlag
	err := row.Scan(&af.VendorID, &af.AccountNumber, &af.PropertyID, &af.IsTracked, &af.IsUBI, &af.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &af, nil
}

// List returns all flag rows in key order.
func (s *Accounts) List(ctx context.Context) ([]models.AccountFlag, error) {
	rows, err := s.db.Query(ctx, `
		SELECT vendor_id, account_number, property_id, is_tracked, is_ubi, updated_at
		FROM account_flags
		ORDER BY vendor_id, account_number, property_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flags := []models.AccountFlag{}
	for rows.Next() {
		var af models.AccountFlag
		if err := rows.Scan(&af.VendorID, &af.AccountNumber, &af.PropertyID, &af.IsTracked, &af.IsUBI, &af.UpdatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, af)
	}
	return flags, rows.Err()
}

// Delete removes a flag row entirely.
func (s *Accounts) Delete(ctx context.Context, vendorID, accountNumber, propertyID string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM account_flags
		WHERE vendor_id = $1 AND account_number = $2 AND property_id = $3`,
		vendorID, accountNumber, propertyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
