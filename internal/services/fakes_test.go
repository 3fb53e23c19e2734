package services

import (
	"context"
	"fmt"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/store"
)

// fakeLineItemStore is an in-memory LineItemStore keyed by bill_id#line_index.
type fakeLineItemStore struct {
	items map[string]models.LineItem
	err   error
}

func newFakeLineItemStore() *fakeLineItemStore {
	return &fakeLineItemStore{items: map[string]models.LineItem{}}
}

func lineItemKey(billID string, lineIndex int) string {
	return fmt.Sprintf("%s#%d", billID, lineIndex)
}

func (f *fakeLineItemStore) Create(_ context.Context, li *models.LineItem) error {
	if f.err != nil {
		return f.err
	}
	k := lineItemKey(li.BillID, li.LineIndex)
	if _, ok := f.items[k]; ok {
		return store.ErrDuplicate
	}
	f.items[k] = *li
	return nil
}

func (f *fakeLineItemStore) Get(_ context.Context, billID string, lineIndex int) (*models.LineItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	li, ok := f.items[lineItemKey(billID, lineIndex)]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := li
	return &out, nil
}

func (f *fakeLineItemStore) Update(_ context.Context, li *models.LineItem) (*models.LineItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	k := lineItemKey(li.BillID, li.LineIndex)
	if _, ok := f.items[k]; !ok {
		return nil, store.ErrNotFound
	}
	f.items[k] = *li
	out := *li
	return &out, nil
}

func (f *fakeLineItemStore) List(_ context.Context, _ store.ListFilter) ([]models.LineItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.LineItem, 0, len(f.items))
	for _, li := range f.items {
		out = append(out, li)
	}
	return out, nil
}

// fakeResolver resolves from a fixed table with wildcard fallback.
type fakeResolver struct {
	mappings map[[2]string]models.ChargeCodeMapping
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, propertyID, glCode string) (*models.ChargeCodeMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	if m, ok := f.mappings[[2]string{propertyID, glCode}]; ok {
		return &m, nil
	}
	if m, ok := f.mappings[[2]string{models.WildcardPropertyID, glCode}]; ok {
		return &m, nil
	}
	return nil, nil
}

// fakeEligibleSource feeds the aggregator a fixed line item set.
type fakeEligibleSource struct {
	items []models.LineItem
	err   error
}

func (f *fakeEligibleSource) ListUBIEligible(_ context.Context) ([]models.LineItem, error) {
	return f.items, f.err
}

// fakeMasterBillStore records ReplaceAll calls and serves reads from the
// last replacement, acting as both sink and source.
type fakeMasterBillStore struct {
	bills      []models.MasterBill
	replaceErr error
	readErr    error
	replaced   int
}

func (f *fakeMasterBillStore) ReplaceAll(_ context.Context, bills []models.MasterBill) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.bills = append([]models.MasterBill(nil), bills...)
	f.replaced++
	return nil
}

func (f *fakeMasterBillStore) ListByPeriod(_ context.Context, periodStart, periodEnd string) ([]models.MasterBill, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	var out []models.MasterBill
	for _, mb := range f.bills {
		if mb.PeriodStart >= periodStart && mb.PeriodEnd <= periodEnd {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (f *fakeMasterBillStore) GetByIDs(_ context.Context, ids []string) ([]models.MasterBill, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	byID := make(map[string]models.MasterBill, len(f.bills))
	for _, mb := range f.bills {
		byID[mb.ID] = mb
	}
	var out []models.MasterBill
	for _, id := range ids {
		if mb, ok := byID[id]; ok {
			out = append(out, mb)
		}
	}
	return out, nil
}

// fakeBatchStore mimics the conditional-write semantics of the real store:
// transitions from the wrong state fail with store.ErrConflict.
type fakeBatchStore struct {
	batches map[string]models.Batch
	err     error
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{batches: map[string]models.Batch{}}
}

func (f *fakeBatchStore) Create(_ context.Context, b *models.Batch) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.batches[b.BatchID]; ok {
		return store.ErrDuplicate
	}
	f.batches[b.BatchID] = *b
	return nil
}

func (f *fakeBatchStore) Get(_ context.Context, batchID string) (*models.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.batches[batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := b
	return &out, nil
}

func (f *fakeBatchStore) List(_ context.Context) ([]models.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Batch, 0, len(f.batches))
	for _, b := range f.batches {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBatchStore) Finalize(_ context.Context, batchID, runDate, reviewedUTC, reviewedBy string) (*models.Batch, error) {
	b, ok := f.batches[batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if b.Status != models.BatchStatusDraft {
		return nil, store.ErrConflict
	}
	b.Status = models.BatchStatusFinalized
	b.RunDate = runDate
	b.ReviewedUTC = reviewedUTC
	b.ReviewedBy = reviewedBy
	f.batches[batchID] = b
	out := b
	return &out, nil
}

func (f *fakeBatchStore) MarkExported(_ context.Context, batchID, exportedUTC, exportedBy string) (*models.Batch, error) {
	b, ok := f.batches[batchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if b.Status != models.BatchStatusFinalized {
		return nil, store.ErrConflict
	}
	b.Status = models.BatchStatusExported
	b.ExportedUTC = exportedUTC
	b.ExportedBy = exportedBy
	f.batches[batchID] = b
	out := b
	return &out, nil
}

func (f *fakeBatchStore) Delete(_ context.Context, batchID string) error {
	b, ok := f.batches[batchID]
	if !ok {
		return store.ErrNotFound
	}
	if b.Status != models.BatchStatusDraft {
		return store.ErrConflict
	}
	delete(f.batches, batchID)
	return nil
}

// fakeUploader records uploaded artifact keys.
type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key, _ string, _ []byte) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	return nil
}

// fakeMappingSource counts loads for resolver cache tests.
type fakeMappingSource struct {
	mappings []models.ChargeCodeMapping
	err      error
	loads    int
}

func (f *fakeMappingSource) List(_ context.Context) ([]models.ChargeCodeMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.loads++
	return f.mappings, nil
}
