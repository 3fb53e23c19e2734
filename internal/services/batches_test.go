package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbackhq/billback-api/internal/models"
)

func q1MasterBills() []models.MasterBill {
	return []models.MasterBill{
		{
			ID:            "P1|ELEC|Electric|2024-01-01|2024-01-31",
			PropertyID:    "P1",
			ChargeCode:    "ELEC",
			UtilityName:   "Electric",
			PeriodStart:   "2024-01-01",
			PeriodEnd:     "2024-01-31",
			UtilityAmount: amt("100.00"),
			Status:        models.MasterBillStatusDraft,
		},
		{
			ID:            "P2|WATER|Water|2024-02-01|2024-02-29",
			PropertyID:    "P2",
			ChargeCode:    "WATER",
			UtilityName:   "Water",
			PeriodStart:   "2024-02-01",
			PeriodEnd:     "2024-02-29",
			UtilityAmount: amt("55.50"),
			Status:        models.MasterBillStatusDraft,
		},
		{
			ID:            "P1|ELEC|Electric|2024-06-01|2024-06-30",
			PropertyID:    "P1",
			ChargeCode:    "ELEC",
			UtilityName:   "Electric",
			PeriodStart:   "2024-06-01",
			PeriodEnd:     "2024-06-30",
			UtilityAmount: amt("80.00"),
			Status:        models.MasterBillStatusDraft,
		},
	}
}

func newBatchService(bills []models.MasterBill) (*BatchService, *fakeBatchStore) {
	batches := newFakeBatchStore()
	source := &fakeMasterBillStore{bills: bills}
	clock := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	return NewBatchService(batches, source, func() time.Time { return clock }), batches
}

func TestBatchService_CreateSnapshotsPeriod(t *testing.T) {
	svc, _ := newBatchService(q1MasterBills())

	b, err := svc.Create(context.Background(), CreateBatchRequest{
		Name:        "Q1 billback",
		PeriodStart: "2024-01-01",
		PeriodEnd:   "2024-03-31",
		Memo:        "Q1 2024 utility billback",
	}, "user_1")
	require.NoError(t, err)

	assert.NotEmpty(t, b.BatchID)
	assert.Equal(t, models.BatchStatusDraft, b.Status)
	assert.Equal(t, 2, b.TotalMasterBills)
	assert.Len(t, b.MasterBillIDs, 2)
	assert.True(t, b.TotalAmount.Equal(amt("155.50")))
	assert.Equal(t, 2, b.PropertiesCount)
	assert.Equal(t, "user_1", b.CreatedBy)
	assert.Empty(t, b.RunDate)
}

func TestBatchService_CreateValidation(t *testing.T) {
	svc, _ := newBatchService(nil)

	tests := []struct {
		name string
		req  CreateBatchRequest
	}{
		{name: "missing name", req: CreateBatchRequest{PeriodStart: "2024-01-01", PeriodEnd: "2024-03-31"}},
		{name: "malformed dates", req: CreateBatchRequest{Name: "x", PeriodStart: "Jan", PeriodEnd: "2024-03-31"}},
		{name: "start after end", req: CreateBatchRequest{Name: "x", PeriodStart: "2024-04-01", PeriodEnd: "2024-03-31"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req, "user_1")
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestBatchService_SnapshotIgnoresLaterAggregation(t *testing.T) {
	source := &fakeMasterBillStore{bills: q1MasterBills()}
	batches := newFakeBatchStore()
	svc := NewBatchService(batches, source, nil)

	b, err := svc.Create(context.Background(), CreateBatchRequest{
		Name:        "Q1",
		PeriodStart: "2024-01-01",
		PeriodEnd:   "2024-03-31",
	}, "user_1")
	require.NoError(t, err)
	snapshot := append([]string(nil), b.MasterBillIDs...)

	// A later aggregation run replaces the master bill set.
	require.NoError(t, source.ReplaceAll(context.Background(), nil))

	got, err := svc.Get(context.Background(), b.BatchID)
	require.NoError(t, err)
	assert.Equal(t, snapshot, got.MasterBillIDs)
}

func TestBatchService_FinalizeStampsRunDateOnce(t *testing.T) {
	svc, _ := newBatchService(q1MasterBills())
	b, err := svc.Create(context.Background(), CreateBatchRequest{
		Name:        "Q1",
		PeriodStart: "2024-01-01",
		PeriodEnd:   "2024-03-31",
	}, "user_1")
	require.NoError(t, err)

	finalized, err := svc.Finalize(context.Background(), b.BatchID, "reviewer_1")
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusFinalized, finalized.Status)
	assert.Equal(t, "2026-08-01T10:30:00Z", finalized.RunDate)
	assert.Equal(t, "reviewer_1", finalized.ReviewedBy)

	// Finalizing again is a state error, not a silent no-op.
	_, err = svc.Finalize(context.Background(), b.BatchID, "reviewer_2")
	var serr *BatchStateError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "finalized")
}

func TestBatchService_FinalizeMissingBatch(t *testing.T) {
	svc, _ := newBatchService(nil)

	_, err := svc.Finalize(context.Background(), "missing", "reviewer_1")
	var nferr *NotFoundError
	assert.ErrorAs(t, err, &nferr)
}

func TestBatchService_DeleteOnlyDrafts(t *testing.T) {
	svc, _ := newBatchService(q1MasterBills())
	b, err := svc.Create(context.Background(), CreateBatchRequest{
		Name:        "Q1",
		PeriodStart: "2024-01-01",
		PeriodEnd:   "2024-03-31",
	}, "user_1")
	require.NoError(t, err)

	_, err = svc.Finalize(context.Background(), b.BatchID, "reviewer_1")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), b.BatchID)
	var serr *BatchStateError
	assert.ErrorAs(t, err, &serr)

	draft, err := svc.Create(context.Background(), CreateBatchRequest{
		Name:        "Q2",
		PeriodStart: "2024-04-01",
		PeriodEnd:   "2024-06-30",
	}, "user_1")
	require.NoError(t, err)
	assert.NoError(t, svc.Delete(context.Background(), draft.BatchID))

	_, err = svc.Get(context.Background(), draft.BatchID)
	var nferr *NotFoundError
	assert.ErrorAs(t, err, &nferr)
}
