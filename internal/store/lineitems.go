package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billbackhq/billback-api/internal/models"
)

// LineItems persists invoice line records.
type LineItems struct {
	db *pgxpool.Pool
}

func NewLineItems(db *pgxpool.Pool) *LineItems {
	return &LineItems{db: db}
}

const lineItemColumns = `
	bill_id, line_index, vendor_id, account_number, property_id, gl_code,
	original_amount::text, current_amount::text,
	amount_overridden, amount_override_reason,
	charge_code, charge_code_source, charge_code_overridden, charge_code_override_reason,
	excluded_from_ubi, exclusion_reason,
	billback_assignments, created_at, updated_at`

// Same list qualified for joins against account_flags.
const lineItemColumnsQualified = `
	li.bill_id, li.line_index, li.vendor_id, li.account_number, li.property_id, li.gl_code,
	li.original_amount::text, li.current_amount::text,
	li.amount_overridden, li.amount_override_reason,
	li.charge_code, li.charge_code_source, li.charge_code_overridden, li.charge_code_override_reason,
	li.excluded_from_ubi, li.exclusion_reason,
	li.billback_assignments, li.created_at, li.updated_at`

func scanLineItem(s scanner) (*models.LineItem, error) {
	var (
		li              models.LineItem
		origText        string
		currText        string
		assignmentsJSON []byte
	)
	err := s.Scan(
		&li.BillID, &li.LineIndex, &li.VendorID, &li.AccountNumber, &li.PropertyID, &li.GLCode,
		&origText, &currText,
		&li.AmountOverridden, &li.AmountOverrideReason,
		&li.ChargeCode, &li.ChargeCodeSource, &li.ChargeCodeOverridden, &li.ChargeCodeOverrideReason,
		&li.ExcludedFromUBI, &li.ExclusionReason,
		&assignmentsJSON, &li.CreatedAt, &li.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if li.OriginalAmount, err = parseAmount(origText); err != nil {
		return nil, fmt.Errorf("line item %s#%d: bad original_amount: %w", li.BillID, li.LineIndex, err)
	}
	if li.CurrentAmount, err = parseAmount(currText); err != nil {
		return nil, fmt.Errorf("line item %s#%d: bad current_amount: %w", li.BillID, li.LineIndex, err)
	}
	li.BillbackAssignments = []models.BillbackAssignment{}
	if len(assignmentsJSON) > 0 {
		if err := json.Unmarshal(assignmentsJSON, &li.BillbackAssignments); err != nil {
			return nil, fmt.Errorf("line item %s#%d: bad billback_assignments: %w", li.BillID, li.LineIndex, err)
		}
	}
	return &li, nil
}

// Create inserts a new line item. Re-creating an existing (bill_id,
// line_index) returns ErrDuplicate; line items are never rewritten at
// ingest.
func (s *LineItems) Create(ctx context.Context, li *models.LineItem) error {
	assignments, err := json.Marshal(li.BillbackAssignments)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO line_items (
			bill_id, line_index, vendor_id, account_number, property_id, gl_code,
			original_amount, current_amount,
			amount_overridden, amount_override_reason,
			charge_code, charge_code_source, charge_code_overridden, charge_code_override_reason,
			excluded_from_ubi, exclusion_reason,
			billback_assignments, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)`,
		li.BillID, li.LineIndex, li.VendorID, li.AccountNumber, li.PropertyID, li.GLCode,
		li.OriginalAmount.StringFixed(2), li.CurrentAmount.StringFixed(2),
		li.AmountOverridden, li.AmountOverrideReason,
		li.ChargeCode, li.ChargeCodeSource, li.ChargeCodeOverridden, li.ChargeCodeOverrideReason,
		li.ExcludedFromUBI, li.ExclusionReason,
		assignments, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	li.CreatedAt = now
	li.UpdatedAt = now
	return nil
}

// Get fetches one line item by its composite key.
func (s *LineItems) Get(ctx context.Context, billID string, lineIndex int) (*models.LineItem, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+lineItemColumns+` FROM line_items WHERE bill_id = $1 AND line_index = $2`,
		billID, lineIndex)
	li, err := scanLineItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return li, err
}

// Update rewrites the mutable fields of a line item. original_amount and the
// classification fields are deliberately not in the SET list.
func (s *LineItems) Update(ctx context.Context, li *models.LineItem) (*models.LineItem, error) {
	assignments, err := json.Marshal(li.BillbackAssignments)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx, `
		UPDATE line_items SET
			current_amount = $3,
			amount_overridden = $4,
			amount_override_reason = $5,
			charge_code = $6,
			charge_code_source = $7,
			charge_code_overridden = $8,
			charge_code_override_reason = $9,
			excluded_from_ubi = $10,
			exclusion_reason = $11,
			billback_assignments = $12,
			updated_at = now()
		WHERE bill_id = $1 AND line_index = $2
		RETURNING `+lineItemColumns,
		li.BillID, li.LineIndex,
		li.CurrentAmount.StringFixed(2),
		li.AmountOverridden, li.AmountOverrideReason,
		li.ChargeCode, li.ChargeCodeSource, li.ChargeCodeOverridden, li.ChargeCodeOverrideReason,
		li.ExcludedFromUBI, li.ExclusionReason,
		assignments,
	)
	updated, err := scanLineItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return updated, err
}

// ListFilter narrows List results; empty fields match everything.
type ListFilter struct {
	VendorID      string
	AccountNumber string
	PropertyID    string
	Limit         int
	Offset        int
}

// List returns line items matching the filter in key order.
func (s *LineItems) List(ctx context.Context, f ListFilter) ([]models.LineItem, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+lineItemColumns+`
		FROM line_items
		WHERE ($1 = '' OR vendor_id = $1)
		  AND ($2 = '' OR account_number = $2)
		  AND ($3 = '' OR property_id = $3)
		ORDER BY bill_id, line_index
		LIMIT $4 OFFSET $5`,
		f.VendorID, f.AccountNumber, f.PropertyID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLineItems(rows)
}

// ListUBIEligible returns every line item whose account is flagged is_ubi,
// in scan (key) order. Exclusion and charge code filtering happen in the
// aggregation engine, not here.
func (s *LineItems) ListUBIEligible(ctx context.Context) ([]models.LineItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+lineItemColumnsQualified+`
		FROM line_items li
		JOIN account_flags af
		  ON af.vendor_id = li.vendor_id
		 AND af.account_number = li.account_number
		 AND af.property_id = li.property_id
		WHERE af.is_ubi
		ORDER BY li.bill_id, li.line_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLineItems(rows)
}

func collectLineItems(rows pgx.Rows) ([]models.LineItem, error) {
	items := []models.LineItem{}
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *li)
	}
	return items, rows.Err()
}
