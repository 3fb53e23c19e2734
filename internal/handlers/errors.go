package handlers

import (
	"errors"

	"github.com/billbackhq/billback-api/internal/services"
	"github.com/billbackhq/billback-api/internal/store"
	"github.com/billbackhq/billback-api/internal/utils"
)

// serviceError maps domain errors onto the API error taxonomy. Unknown
// errors propagate to the Fiber error handler as internal errors.
func serviceError(err error) error {
	var (
		validationErr  *services.ValidationError
		notFoundErr    *services.NotFoundError
		batchStateErr  *services.BatchStateError
		aggregationErr *services.AggregationError
	)
	switch {
	case errors.As(err, &validationErr):
		return utils.NewValidationError(validationErr.Message)
	case errors.As(err, &notFoundErr):
		return utils.NewNotFoundError(notFoundErr.Resource)
	case errors.As(err, &batchStateErr):
		return utils.NewBatchStateError(batchStateErr.Error())
	case errors.As(err, &aggregationErr):
		return utils.NewAggregationError(aggregationErr.Error())
	case errors.Is(err, store.ErrNotFound):
		return utils.NewNotFoundError("resource")
	default:
		return utils.NewInternalError(err)
	}
}
