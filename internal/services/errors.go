package services

import "fmt"

// ValidationError rejects a request whose fields violate the override or
// assignment rules (missing reason, malformed assignment list, bad dates).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing bill_id/line_index, batch_id or
// master_bill_id.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found", e.Resource) }

// BatchStateError rejects a batch transition attempted outside the
// draft -> finalized -> exported sequence.
type BatchStateError struct {
	BatchID string
	Message string
}

func (e *BatchStateError) Error() string {
	return fmt.Sprintf("batch %s: %s", e.BatchID, e.Message)
}

// AggregationError reports an atomic failure of a master bill run or an
// export; the whole run is discarded, no partial output is published.
type AggregationError struct {
	Stage string
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed (%s): %v", e.Stage, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
