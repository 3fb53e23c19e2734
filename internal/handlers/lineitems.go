package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/services"
	"github.com/billbackhq/billback-api/internal/store"
	"github.com/billbackhq/billback-api/internal/utils"
)

// LineItemService is the slice of the line item service the handler needs.
type LineItemService interface {
	Create(ctx context.Context, req services.CreateLineItemRequest) (*models.LineItem, error)
	Get(ctx context.Context, billID string, lineIndex int) (*models.LineItem, error)
	List(ctx context.Context, f store.ListFilter) ([]models.LineItem, error)
	Update(ctx context.Context, billID string, lineIndex int, req services.UpdateLineItemRequest) (*models.LineItem, error)
	AssignPeriods(ctx context.Context, billID string, lineIndex int, assignments []models.BillbackAssignment) (*models.LineItem, error)
}

// LineItemHandler handles line item ingest, review overrides and period
// assignment.
type LineItemHandler struct {
	lineItems LineItemService
}

func NewLineItemHandler(lineItems LineItemService) *LineItemHandler {
	return &LineItemHandler{lineItems: lineItems}
}

// Ingest creates a line item (called by the parsing pipeline).
// POST /v1/internal/line-items
func (h *LineItemHandler) Ingest(c fiber.Ctx) error {
	var req services.CreateLineItemRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	li, err := h.lineItems.Create(c.Context(), req)
	if err != nil {
		return serviceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(li)
}

// List returns line items with optional vendor/account/property filters.
// GET /v1/line-items?vendor_id=&account_number=&property_id=&limit=&offset=
func (h *LineItemHandler) List(c fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit < 1 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	items, err := h.lineItems.List(c.Context(), store.ListFilter{
		VendorID:      c.Query("vendor_id"),
		AccountNumber: c.Query("account_number"),
		PropertyID:    c.Query("property_id"),
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"line_items": items,
		"count":      len(items),
		"limit":      limit,
		"offset":     offset,
	})
}

// Get returns one line item.
// GET /v1/line-items/:bill_id/:line_index
func (h *LineItemHandler) Get(c fiber.Ctx) error {
	billID, lineIndex, err := lineItemKey(c)
	if err != nil {
		return err
	}

	li, err := h.lineItems.Get(c.Context(), billID, lineIndex)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(li)
}

// Update applies override fields to a line item.
// PUT /v1/line-items/:bill_id/:line_index
func (h *LineItemHandler) Update(c fiber.Ctx) error {
	billID, lineIndex, err := lineItemKey(c)
	if err != nil {
		return err
	}

	var req services.UpdateLineItemRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	li, err := h.lineItems.Update(c.Context(), billID, lineIndex, req)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(li)
}

// AssignPeriodsRequest wraps the replacement assignment list.
type AssignPeriodsRequest struct {
	Assignments []models.BillbackAssignment `json:"assignments"`
}

// AssignPeriods replaces a line item's billback period assignments.
// PUT /v1/line-items/:bill_id/:line_index/periods
func (h *LineItemHandler) AssignPeriods(c fiber.Ctx) error {
	billID, lineIndex, err := lineItemKey(c)
	if err != nil {
		return err
	}

	var req AssignPeriodsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	li, err := h.lineItems.AssignPeriods(c.Context(), billID, lineIndex, req.Assignments)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(li)
}

// lineItemKey parses the composite key path params; errors render through
// the app error handler.
func lineItemKey(c fiber.Ctx) (string, int, error) {
	billID := c.Params("bill_id")
	if billID == "" {
		return "", 0, utils.NewBadRequestError("bill_id is required", nil)
	}
	lineIndex, err := strconv.Atoi(c.Params("line_index"))
	if err != nil || lineIndex < 0 {
		return "", 0, utils.NewBadRequestError("invalid line_index", nil)
	}
	return billID, lineIndex, nil
}
