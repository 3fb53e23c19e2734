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

// Batches persists export batches. Finalize and MarkExported are conditional
// writes: the UPDATE only matches when the row still holds the expected
// prior status, which is the compare-and-swap that prevents double-finalize
// and double-export under concurrent requests.
type Batches struct {
	db *pgxpool.Pool
}

func NewBatches(db *pgxpool.Pool) *Batches {
	return &Batches{db: db}
}

const batchColumns = `
	batch_id, batch_name, period_start, period_end, memo,
	master_bill_ids, total_master_bills, total_amount::text, properties_count,
	status, run_date, reviewed_utc, reviewed_by, exported_utc, exported_by,
	created_by, created_at`

func scanBatch(s scanner) (*models.Batch, error) {
	var (
		b          models.Batch
		idsJSON    []byte
		amountText string
	)
	err := s.Scan(
		&b.BatchID, &b.BatchName, &b.PeriodStart, &b.PeriodEnd, &b.Memo,
		&idsJSON, &b.TotalMasterBills, &amountText, &b.PropertiesCount,
		&b.Status, &b.RunDate, &b.ReviewedUTC, &b.ReviewedBy, &b.ExportedUTC, &b.ExportedBy,
		&b.CreatedBy, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.TotalAmount, err = parseAmount(amountText); err != nil {
		return nil, fmt.Errorf("batch %s: bad total_amount: %w", b.BatchID, err)
	}
	b.MasterBillIDs = []string{}
	if len(idsJSON) > 0 {
		if err := json.Unmarshal(idsJSON, &b.MasterBillIDs); err != nil {
			return nil, fmt.Errorf("batch %s: bad master_bill_ids: %w", b.BatchID, err)
		}
	}
	return &b, nil
}

// Create inserts a new draft batch.
func (s *Batches) Create(ctx context.Context, b *models.Batch) error {
	ids, err := json.Marshal(b.MasterBillIDs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO batches (
			batch_id, batch_name, period_start, period_end, memo,
			master_bill_ids, total_master_bills, total_amount, properties_count,
			status, run_date, reviewed_utc, reviewed_by, exported_utc, exported_by,
			created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'','','','','',$11,$12)`,
		b.BatchID, b.BatchName, b.PeriodStart, b.PeriodEnd, b.Memo,
		ids, b.TotalMasterBills, b.TotalAmount.StringFixed(2), b.PropertiesCount,
		b.Status, b.CreatedBy, b.CreatedAt,
	)
	return err
}

// Get fetches one batch.
func (s *Batches) Get(ctx context.Context, batchID string) (*models.Batch, error) {
	row := s.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE batch_id = $1`, batchID)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// List returns batches newest first.
func (s *Batches) List(ctx context.Context) ([]models.Batch, error) {
	rows, err := s.db.Query(ctx, `SELECT `+batchColumns+` FROM batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := []models.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// Finalize transitions draft -> finalized. ErrConflict when the batch is no
// longer draft, ErrNotFound when it does not exist.
func (s *Batches) Finalize(ctx context.Context, batchID, runDate, reviewedUTC, reviewedBy string) (*models.Batch, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE batches SET
			status = $2, run_date = $3, reviewed_utc = $4, reviewed_by = $5
		WHERE batch_id = $1 AND status = $6
		RETURNING `+batchColumns,
		batchID, models.BatchStatusFinalized, runDate, reviewedUTC, reviewedBy,
		models.BatchStatusDraft)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.conflictOrMissing(ctx, batchID)
	}
	return b, err
}

// MarkExported transitions finalized -> exported under the same
// compare-and-swap discipline.
func (s *Batches) MarkExported(ctx context.Context, batchID, exportedUTC, exportedBy string) (*models.Batch, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE batches SET
			status = $2, exported_utc = $3, exported_by = $4
		WHERE batch_id = $1 AND status = $5
		RETURNING `+batchColumns,
		batchID, models.BatchStatusExported, exportedUTC, exportedBy,
		models.BatchStatusFinalized)
	b, err := scanBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.conflictOrMissing(ctx, batchID)
	}
	return b, err
}

// Delete removes a batch only while it is still draft.
func (s *Batches) Delete(ctx context.Context, batchID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM batches WHERE batch_id = $1 AND status = $2`,
		batchID, models.BatchStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrMissing(ctx, batchID)
	}
	return nil
}

func (s *Batches) conflictOrMissing(ctx context.Context, batchID string) error {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM batches WHERE batch_id = $1`, batchID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrConflict
}
