package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/store"
)

// MasterBillSource reads aggregation output for batching and export.
type MasterBillSource interface {
	ListByPeriod(ctx context.Context, periodStart, periodEnd string) ([]models.MasterBill, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.MasterBill, error)
}

// BatchStore persists batches; Finalize and MarkExported are conditional
// writes that fail with store.ErrConflict when the expected prior state no
// longer holds.
type BatchStore interface {
	Create(ctx context.Context, b *models.Batch) error
	Get(ctx context.Context, batchID string) (*models.Batch, error)
	List(ctx context.Context) ([]models.Batch, error)
	Finalize(ctx context.Context, batchID, runDate, reviewedUTC, reviewedBy string) (*models.Batch, error)
	MarkExported(ctx context.Context, batchID, exportedUTC, exportedBy string) (*models.Batch, error)
	Delete(ctx context.Context, batchID string) error
}

// BatchService owns the batch lifecycle. Status only ever moves forward:
// draft -> finalized -> exported.
type BatchService struct {
	batches     BatchStore
	masterBills MasterBillSource
	now         func() time.Time
}

func NewBatchService(batches BatchStore, masterBills MasterBillSource, now func() time.Time) *BatchService {
	if now == nil {
		now = time.Now
	}
	return &BatchService{batches: batches, masterBills: masterBills, now: now}
}

// CreateBatchRequest names a date range and the memo applied to every
// exported row.
type CreateBatchRequest struct {
	Name        string `json:"name"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Memo        string `json:"memo"`
}

// Create snapshots the master bills whose period lies within the range.
// The snapshot is fixed for the batch's lifetime; later aggregation runs do
// not change what an existing batch will export.
func (s *BatchService) Create(ctx context.Context, req CreateBatchRequest, createdBy string) (*models.Batch, error) {
	if req.Name == "" {
		return nil, validationErrorf("batch name is required")
	}
	if !isISODate(req.PeriodStart) || !isISODate(req.PeriodEnd) {
		return nil, validationErrorf("period_start and period_end must be YYYY-MM-DD")
	}
	if req.PeriodStart > req.PeriodEnd {
		return nil, validationErrorf("period_start is after period_end")
	}

	bills, err := s.masterBills.ListByPeriod(ctx, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(bills))
	total := decimal.Zero
	properties := map[string]struct{}{}
	for _, mb := range bills {
		ids = append(ids, mb.ID)
		total = total.Add(mb.UtilityAmount)
		properties[mb.PropertyID] = struct{}{}
	}

	b := &models.Batch{
		BatchID:          uuid.New().String(),
		BatchName:        req.Name,
		PeriodStart:      req.PeriodStart,
		PeriodEnd:        req.PeriodEnd,
		Memo:             req.Memo,
		MasterBillIDs:    ids,
		TotalMasterBills: len(ids),
		TotalAmount:      total,
		PropertiesCount:  len(properties),
		Status:           models.BatchStatusDraft,
		CreatedBy:        createdBy,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.batches.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Get returns one batch.
func (s *BatchService) Get(ctx context.Context, batchID string) (*models.Batch, error) {
	b, err := s.batches.Get(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "batch"}
	}
	return b, err
}

// List returns all batches, newest first.
func (s *BatchService) List(ctx context.Context) ([]models.Batch, error) {
	return s.batches.List(ctx)
}

// Finalize moves a draft batch to finalized and stamps run_date exactly
// once. Finalizing a batch that is not draft is a BatchStateError, never a
// silent no-op.
func (s *BatchService) Finalize(ctx context.Context, batchID, reviewedBy string) (*models.Batch, error) {
	now := s.now().UTC().Format(time.RFC3339)
	b, err := s.batches.Finalize(ctx, batchID, now, now, reviewedBy)
	if err != nil {
		return nil, s.transitionError(ctx, batchID, err, models.BatchStatusDraft)
	}
	return b, nil
}

// Delete removes a batch while it is still draft.
func (s *BatchService) Delete(ctx context.Context, batchID string) error {
	if err := s.batches.Delete(ctx, batchID); err != nil {
		return s.transitionError(ctx, batchID, err, models.BatchStatusDraft)
	}
	return nil
}

// transitionError maps store sentinels onto the API taxonomy, naming the
// batch's actual status when a transition is refused.
func (s *BatchService) transitionError(ctx context.Context, batchID string, err error, expected string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Resource: "batch"}
	case errors.Is(err, store.ErrConflict):
		current := "unknown"
		if b, getErr := s.batches.Get(ctx, batchID); getErr == nil {
			current = b.Status
		}
		return &BatchStateError{
			BatchID: batchID,
			Message: "status is " + current + ", expected " + expected,
		}
	default:
		return err
	}
}
