package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billbackhq/billback-api/internal/models"
)

// MasterBills persists aggregation output. The set is only ever replaced
// wholesale by an aggregation run, never mutated row by row.
type MasterBills struct {
	db *pgxpool.Pool
}

func NewMasterBills(db *pgxpool.Pool) *MasterBills {
	return &MasterBills{db: db}
}

const masterBillColumns = `
	master_bill_id, property_id, charge_code, utility_name, period_start, period_end,
	utility_amount::text, source_line_items, status, generated_at`

func scanMasterBill(s scanner) (*models.MasterBill, error) {
	var (
		mb         models.MasterBill
		amountText string
		sourceJSON []byte
	)
	err := s.Scan(
		&mb.ID, &mb.PropertyID, &mb.ChargeCode, &mb.UtilityName, &mb.PeriodStart, &mb.PeriodEnd,
		&amountText, &sourceJSON, &mb.Status, &mb.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}
	if mb.UtilityAmount, err = parseAmount(amountText); err != nil {
		return nil, fmt.Errorf("master bill %s: bad utility_amount: %w", mb.ID, err)
	}
	mb.SourceLineItems = []models.SourceLineItem{}
	if len(sourceJSON) > 0 {
		if err := json.Unmarshal(sourceJSON, &mb.SourceLineItems); err != nil {
			return nil, fmt.Errorf("master bill %s: bad source_line_items: %w", mb.ID, err)
		}
	}
	return &mb, nil
}

// ReplaceAll swaps the entire master bill set in one transaction. Either the
// new set commits whole or the previous set survives untouched.
func (s *MasterBills) ReplaceAll(ctx context.Context, bills []models.MasterBill) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM master_bills`); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, mb := range bills {
		source, err := json.Marshal(mb.SourceLineItems)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO master_bills (
				master_bill_id, property_id, charge_code, utility_name,
				period_start, period_end, utility_amount, source_line_items,
				status, generated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			mb.ID, mb.PropertyID, mb.ChargeCode, mb.UtilityName,
			mb.PeriodStart, mb.PeriodEnd, mb.UtilityAmount.StringFixed(2), source,
			mb.Status, mb.GeneratedAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get fetches one master bill by its composite ID.
func (s *MasterBills) Get(ctx context.Context, id string) (*models.MasterBill, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+masterBillColumns+` FROM master_bills WHERE master_bill_id = $1`, id)
	mb, err := scanMasterBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return mb, err
}

// GetByIDs fetches the referenced master bills. The caller detects missing
// IDs by comparing lengths; this layer does not error on absence.
func (s *MasterBills) GetByIDs(ctx context.Context, ids []string) ([]models.MasterBill, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+masterBillColumns+` FROM master_bills WHERE master_bill_id = ANY($1) ORDER BY master_bill_id`,
		ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMasterBills(rows)
}

// List returns master bills, optionally narrowed to one property.
func (s *MasterBills) List(ctx context.Context, propertyID string) ([]models.MasterBill, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+masterBillColumns+`
		FROM master_bills
		WHERE ($1 = '' OR property_id = $1)
		ORDER BY master_bill_id`, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMasterBills(rows)
}

// ListByPeriod returns master bills whose period lies fully inside
// [periodStart, periodEnd]. ISO date strings compare lexicographically.
func (s *MasterBills) ListByPeriod(ctx context.Context, periodStart, periodEnd string) ([]models.MasterBill, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+masterBillColumns+`
		FROM master_bills
		WHERE period_start >= $1 AND period_end <= $2
		ORDER BY master_bill_id`, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMasterBills(rows)
}

func collectMasterBills(rows pgx.Rows) ([]models.MasterBill, error) {
	bills := []models.MasterBill{}
	for rows.Next() {
		mb, err := scanMasterBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *mb)
	}
	return bills, rows.Err()
}
