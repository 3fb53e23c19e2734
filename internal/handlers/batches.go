package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/services"
)

// BatchService is the batch lifecycle surface the handler needs.
type BatchService interface {
	Create(ctx context.Context, req services.CreateBatchRequest, createdBy string) (*models.Batch, error)
	Get(ctx context.Context, batchID string) (*models.Batch, error)
	List(ctx context.Context) ([]models.Batch, error)
	Finalize(ctx context.Context, batchID, reviewedBy string) (*models.Batch, error)
	Delete(ctx context.Context, batchID string) error
}

// ExportService renders a finalized batch for the warehouse.
type ExportService interface {
	Export(ctx context.Context, batchID, exportedBy string) (*services.ExportResult, error)
}

// BatchHandler exposes batch creation, lifecycle transitions and export.
type BatchHandler struct {
	batches  BatchService
	exporter ExportService
}

func NewBatchHandler(batches BatchService, exporter ExportService) *BatchHandler {
	return &BatchHandler{batches: batches, exporter: exporter}
}

// actor returns the authenticated staff identity for audit fields.
func actor(c fiber.Ctx) string {
	if userID, ok := c.Locals("user_id").(string); ok {
		return userID
	}
	return ""
}

// Create snapshots master bills for a period into a new draft batch.
// POST /v1/batches
func (h *BatchHandler) Create(c fiber.Ctx) error {
	var req services.CreateBatchRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	b, err := h.batches.Create(c.Context(), req, actor(c))
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

// List returns all batches.
// GET /v1/batches
func (h *BatchHandler) List(c fiber.Ctx) error {
	batches, err := h.batches.List(c.Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{
		"batches": batches,
		"count":   len(batches),
	})
}

// Get returns one batch.
// GET /v1/batches/:id
func (h *BatchHandler) Get(c fiber.Ctx) error {
	b, err := h.batches.Get(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(b)
}

// Finalize moves a draft batch to finalized, stamping run_date.
// POST /v1/batches/:id/finalize
func (h *BatchHandler) Finalize(c fiber.Ctx) error {
	b, err := h.batches.Finalize(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(b)
}

// Export renders a finalized batch into warehouse rows; re-export is
// refused.
// POST /v1/batches/:id/export
func (h *BatchHandler) Export(c fiber.Ctx) error {
	result, err := h.exporter.Export(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(result)
}

// Delete removes a draft batch.
// DELETE /v1/batches/:id
func (h *BatchHandler) Delete(c fiber.Ctx) error {
	if err := h.batches.Delete(c.Context(), c.Params("id")); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "batch deleted"})
}
