package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/billbackhq/billback-api/internal/models"
)

// MappingStore is the mapping table surface the handler needs.
type MappingStore interface {
	List(ctx context.Context) ([]models.ChargeCodeMapping, error)
	Put(ctx context.Context, mappings []models.ChargeCodeMapping) error
	Delete(ctx context.Context, propertyID, glCode string) error
}

// CacheInvalidator drops a cached mapping snapshot after writes.
type CacheInvalidator interface {
	Invalidate()
}

// MappingHandler manages the GL code to charge code mapping table.
type MappingHandler struct {
	mappings MappingStore
	resolver CacheInvalidator
}

func NewMappingHandler(mappings MappingStore, resolver CacheInvalidator) *MappingHandler {
	return &MappingHandler{mappings: mappings, resolver: resolver}
}

// List returns the full mapping table.
// GET /v1/charge-codes
func (h *MappingHandler) List(c fiber.Ctx) error {
	mappings, err := h.mappings.List(c.Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{
		"mappings": mappings,
		"count":    len(mappings),
	})
}

// PutMappingsRequest carries mapping rows to upsert.
type PutMappingsRequest struct {
	Mappings []models.ChargeCodeMapping `json:"mappings"`
}

// Put upserts mapping rows and invalidates the resolver snapshot so the
// next resolution sees the new table.
// PUT /v1/charge-codes
func (h *MappingHandler) Put(c fiber.Ctx) error {
	var req PutMappingsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if len(req.Mappings) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "mappings cannot be empty",
		})
	}
	for _, m := range req.Mappings {
		if m.PropertyID == "" || m.GLCode == "" || m.ChargeCode == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "property_id, gl_code and charge_code are required on every mapping",
			})
		}
	}

	if err := h.mappings.Put(c.Context(), req.Mappings); err != nil {
		return serviceError(err)
	}
	if h.resolver != nil {
		h.resolver.Invalidate()
	}

	return c.JSON(fiber.Map{
		"message": "mappings saved",
		"count":   len(req.Mappings),
	})
}

// Delete removes one mapping row and invalidates the resolver snapshot.
// DELETE /v1/charge-codes?property_id=&gl_code=
func (h *MappingHandler) Delete(c fiber.Ctx) error {
	propertyID := c.Query("property_id")
	glCode := c.Query("gl_code")
	if propertyID == "" || glCode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "property_id and gl_code are required",
		})
	}

	if err := h.mappings.Delete(c.Context(), propertyID, glCode); err != nil {
		return serviceError(err)
	}
	if h.resolver != nil {
		h.resolver.Invalidate()
	}

	return c.JSON(fiber.Map{"message": "mapping removed"})
}
