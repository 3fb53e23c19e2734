package handlers

import (
	"context"
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/services"
)

// AggregatorService runs master bill generation.
type AggregatorService interface {
	Generate(ctx context.Context, dateRange *models.DateRange) (*services.AggregationResult, error)
}

// MasterBillReader lists and fetches aggregation output.
type MasterBillReader interface {
	List(ctx context.Context, propertyID string) ([]models.MasterBill, error)
	Get(ctx context.Context, id string) (*models.MasterBill, error)
}

// MasterBillHandler exposes aggregation runs and master bill drill-down.
type MasterBillHandler struct {
	aggregator AggregatorService
	bills      MasterBillReader
}

func NewMasterBillHandler(aggregator AggregatorService, bills MasterBillReader) *MasterBillHandler {
	return &MasterBillHandler{aggregator: aggregator, bills: bills}
}

// GenerateRequest optionally bounds the aggregation run.
type GenerateRequest struct {
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
}

// Generate runs aggregation, replacing the master bill set wholesale.
// POST /v1/master-bills/generate
func (h *MasterBillHandler) Generate(c fiber.Ctx) error {
	var req GenerateRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}

	var dateRange *models.DateRange
	if req.PeriodStart != "" || req.PeriodEnd != "" {
		if req.PeriodStart == "" || req.PeriodEnd == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "period_start and period_end must be provided together",
			})
		}
		dateRange = &models.DateRange{Start: req.PeriodStart, End: req.PeriodEnd}
	}

	result, err := h.aggregator.Generate(c.Context(), dateRange)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(result)
}

// List returns master bills, optionally for one property.
// GET /v1/master-bills?property_id=
func (h *MasterBillHandler) List(c fiber.Ctx) error {
	bills, err := h.bills.List(c.Context(), c.Query("property_id"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(fiber.Map{
		"master_bills": bills,
		"count":        len(bills),
	})
}

// Get returns one master bill with its provenance.
// GET /v1/master-bills/:id
func (h *MasterBillHandler) Get(c fiber.Ctx) error {
	mb, err := h.bills.Get(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(mb)
}

// PropertyStats is one row of the by-property rollup.
type PropertyStats struct {
	PropertyID  string          `json:"property_id"`
	MasterBills int             `json:"master_bills"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// StatsByProperty rolls current master bills up by property.
// GET /v1/master-bills/stats/by-property
func (h *MasterBillHandler) StatsByProperty(c fiber.Ctx) error {
	bills, err := h.bills.List(c.Context(), "")
	if err != nil {
		return serviceError(err)
	}

	byProperty := map[string]*PropertyStats{}
	for _, mb := range bills {
		s, ok := byProperty[mb.PropertyID]
		if !ok {
			s = &PropertyStats{PropertyID: mb.PropertyID, TotalAmount: decimal.Zero}
			byProperty[mb.PropertyID] = s
		}
		s.MasterBills++
		s.TotalAmount = s.TotalAmount.Add(mb.UtilityAmount)
	}

	stats := make([]PropertyStats, 0, len(byProperty))
	for _, s := range byProperty {
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].PropertyID < stats[j].PropertyID })

	return c.JSON(fiber.Map{
		"properties": stats,
		"count":      len(stats),
	})
}
