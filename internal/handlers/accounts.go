package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/billbackhq/billback-api/internal/models"
)

// AccountStore is the flag registry surface the handler needs.
type AccountStore interface {
	Upsert(ctx context.Context, vendorID, accountNumber, propertyID string, isTracked, isUBI *bool) (*models.AccountFlag, error)
	Get(ctx context.Context, vendorID, accountNumber, propertyID string) (*models.AccountFlag, error)
	List(ctx context.Context) ([]models.AccountFlag, error)
	Delete(ctx context.Context, vendorID, accountNumber, propertyID string) error
}

// AccountHandler manages per-account tracking and UBI flags.
type AccountHandler struct {
	accounts AccountStore
}

func NewAccountHandler(accounts AccountStore) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// AccountFlagRequest sets either or both flags; omitted flags keep their
// stored value, so is_tracked and is_ubi never imply each other.
type AccountFlagRequest struct {
	VendorID      string `json:"vendor_id"`
	AccountNumber string `json:"account_number"`
	PropertyID    string `json:"property_id"`
	IsTracked     *bool  `json:"is_tracked,omitempty"`
	IsUBI         *bool  `json:"is_ubi,omitempty"`
}

// Upsert creates or updates an account flag row.
// POST /v1/accounts
func (h *AccountHandler) Upsert(c fiber.Ctx) error {
	var req AccountFlagRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.VendorID == "" || req.AccountNumber == "" || req.PropertyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "vendor_id, account_number and property_id are required",
		})
	}
	if req.IsTracked == nil && req.IsUBI == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "at least one of is_tracked or is_ubi must be provided",
		})
	}

	flag, err := h.accounts.Upsert(c.Context(), req.VendorID, req.AccountNumber, req.PropertyID, req.IsTracked, req.IsUBI)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(flag)
}

// Get returns one account flag row.
// GET /v1/accounts/flag?vendor_id=&account_number=&property_id=
func (h *AccountHandler) Get(c fiber.Ctx) error {
	vendorID := c.Query("vendor_id")
	accountNumber := c.Query("account_number")
	propertyID := c.Query("property_id")
	if vendorID == "" || accountNumber == "" || propertyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "vendor_id, account_number and property_id are required",
		})
	}

	flag, err := h.accounts.Get(c.Context(), vendorID, accountNumber, propertyID)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(flag)
}

// List returns all account flag rows.
// GET /v1/accounts
func (h *AccountHandler) List(c fiber.Ctx) error {
	flags, err := h.accounts.List(c.Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{
		"accounts": flags,
		"count":    len(flags),
	})
}

// Delete removes an account flag row.
// DELETE /v1/accounts?vendor_id=&account_number=&property_id=
func (h *AccountHandler) Delete(c fiber.Ctx) error {
	vendorID := c.Query("vendor_id")
	accountNumber := c.Query("account_number")
	propertyID := c.Query("property_id")
	if vendorID == "" || accountNumber == "" || propertyID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "vendor_id, account_number and property_id are required",
		})
	}

	if err := h.accounts.Delete(c.Context(), vendorID, accountNumber, propertyID); err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{"message": "account flag removed"})
}
