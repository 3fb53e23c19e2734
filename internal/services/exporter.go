package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/store"
	"github.com/billbackhq/billback-api/internal/warehouse"
)

// ArtifactUploader drops export artifacts (CSV, workbook) into object
// storage for the upload/audit trail.
type ArtifactUploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) error
}

// ExportResult is the outcome of a successful batch export.
type ExportResult struct {
	RowsExported int           `json:"rows_exported"`
	Statements   []string      `json:"statements"`
	ArtifactKeys []string      `json:"artifact_keys,omitempty"`
	Batch        *models.Batch `json:"batch"`
}

// Exporter renders a finalized batch into warehouse rows. Its core
// guarantee is at-most-once export per batch: the finalized -> exported
// transition is a conditional write, and a batch that already exported is
// refused with zero additional rows.
type Exporter struct {
	batches     BatchStore
	masterBills MasterBillSource
	artifacts   ArtifactUploader
	table       string
	now         func() time.Time
}

func NewExporter(batches BatchStore, masterBills MasterBillSource, artifacts ArtifactUploader, table string, now func() time.Time) *Exporter {
	if now == nil {
		now = time.Now
	}
	return &Exporter{
		batches:     batches,
		masterBills: masterBills,
		artifacts:   artifacts,
		table:       table,
		now:         now,
	}
}

// Export renders one warehouse row per master bill in the batch snapshot.
// Every row shares the batch's run_date and memo; GL codes and line item
// detail never leave the provenance records. A missing referenced master
// bill aborts the export whole.
func (e *Exporter) Export(ctx context.Context, batchID, exportedBy string) (*ExportResult, error) {
	b, err := e.batches.Get(ctx, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "batch"}
	}
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case models.BatchStatusFinalized:
		// proceed
	case models.BatchStatusExported:
		return nil, &BatchStateError{BatchID: batchID, Message: "already exported"}
	default:
		return nil, &BatchStateError{BatchID: batchID, Message: "status is " + b.Status + ", expected finalized"}
	}

	bills, err := e.masterBills.GetByIDs(ctx, b.MasterBillIDs)
	if err != nil {
		return nil, &AggregationError{Stage: "load master bills", Err: err}
	}
	if len(bills) != len(b.MasterBillIDs) {
		return nil, &AggregationError{
			Stage: "load master bills",
			Err:   fmt.Errorf("batch references %d master bills but %d were found", len(b.MasterBillIDs), len(bills)),
		}
	}

	rows := make([]warehouse.Row, 0, len(bills))
	for _, mb := range bills {
		rows = append(rows, warehouse.FromMasterBill(mb, b.RunDate, b.Memo))
	}
	statements := warehouse.InsertStatements(e.table, rows)

	// Artifacts upload before the exported transition. They derive only
	// from the frozen snapshot, run_date and memo, so a concurrent export
	// losing the compare-and-swap below has written the same bytes to the
	// same keys. A failed upload leaves the batch finalized and the export
	// retryable.
	artifactKeys, err := e.uploadArtifacts(ctx, batchID, rows)
	if err != nil {
		return nil, err
	}

	exportedUTC := e.now().UTC().Format(time.RFC3339)
	updated, err := e.batches.MarkExported(ctx, batchID, exportedUTC, exportedBy)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, &NotFoundError{Resource: "batch"}
		case errors.Is(err, store.ErrConflict):
			// A concurrent export won the compare-and-swap.
			return nil, &BatchStateError{BatchID: batchID, Message: "already exported"}
		default:
			return nil, err
		}
	}

	return &ExportResult{
		RowsExported: len(rows),
		Statements:   statements,
		ArtifactKeys: artifactKeys,
		Batch:        updated,
	}, nil
}

// uploadArtifacts writes the CSV and the per-property workbook that back
// the manual warehouse upload flow. A nil uploader skips artifacts.
func (e *Exporter) uploadArtifacts(ctx context.Context, batchID string, rows []warehouse.Row) ([]string, error) {
	if e.artifacts == nil {
		return nil, nil
	}

	csvBody, err := warehouse.CSV(rows)
	if err != nil {
		return nil, err
	}
	csvKey := fmt.Sprintf("exports/%s/ubi_transactions.csv", batchID)
	if err := e.artifacts.Upload(ctx, csvKey, "text/csv", csvBody); err != nil {
		return nil, fmt.Errorf("failed to upload export CSV: %w", err)
	}

	workbook, err := BuildWorkbook(rows)
	if err != nil {
		return nil, err
	}
	xlsxKey := fmt.Sprintf("exports/%s/ubi_transactions.xlsx", batchID)
	if err := e.artifacts.Upload(ctx, xlsxKey,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", workbook); err != nil {
		return nil, fmt.Errorf("failed to upload export workbook: %w", err)
	}

	return []string{csvKey, xlsxKey}, nil
}
