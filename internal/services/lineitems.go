package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/billbackhq/billback-api/internal/models"
	"github.com/billbackhq/billback-api/internal/store"
)

// LineItemStore is the persistence surface the line item service needs.
type LineItemStore interface {
	Create(ctx context.Context, li *models.LineItem) error
	Get(ctx context.Context, billID string, lineIndex int) (*models.LineItem, error)
	Update(ctx context.Context, li *models.LineItem) (*models.LineItem, error)
	List(ctx context.Context, f store.ListFilter) ([]models.LineItem, error)
}

// ChargeCodeResolver resolves a GL code to its effective mapping; nil means
// unresolved.
type ChargeCodeResolver interface {
	Resolve(ctx context.Context, propertyID, glCode string) (*models.ChargeCodeMapping, error)
}

// assignmentEpsilon tolerates sub-cent drift when comparing an assignment
// sum against current_amount.
var assignmentEpsilon = decimal.NewFromFloat(0.01)

// LineItemService enforces the override rules: every override carries a
// reason or the write is rejected.
type LineItemService struct {
	items    LineItemStore
	resolver ChargeCodeResolver
}

func NewLineItemService(items LineItemStore, resolver ChargeCodeResolver) *LineItemService {
	return &LineItemService{items: items, resolver: resolver}
}

// CreateLineItemRequest is the ingest payload from the parsing pipeline.
type CreateLineItemRequest struct {
	BillID         string                      `json:"bill_id"`
	LineIndex      int                         `json:"line_index"`
	VendorID       string                      `json:"vendor_id"`
	AccountNumber  string                      `json:"account_number"`
	PropertyID     string                      `json:"property_id"`
	GLCode         string                      `json:"gl_code"`
	OriginalAmount decimal.Decimal             `json:"original_amount"`
	Assignments    []models.BillbackAssignment `json:"billback_assignments,omitempty"`
}

// Create ingests a new line item, resolving its charge code from the
// mapping table. Line items are never re-created: an existing
// (bill_id, line_index) is a validation failure, not an upsert.
func (s *LineItemService) Create(ctx context.Context, req CreateLineItemRequest) (*models.LineItem, error) {
	if req.BillID == "" {
		return nil, validationErrorf("bill_id is required")
	}
	if req.LineIndex < 0 {
		return nil, validationErrorf("line_index must not be negative")
	}
	if req.VendorID == "" || req.AccountNumber == "" || req.PropertyID == "" {
		return nil, validationErrorf("vendor_id, account_number and property_id are required")
	}
	if req.GLCode == "" {
		return nil, validationErrorf("gl_code is required")
	}

	li := &models.LineItem{
		BillID:              req.BillID,
		LineIndex:           req.LineIndex,
		VendorID:            req.VendorID,
		AccountNumber:       req.AccountNumber,
		PropertyID:          req.PropertyID,
		GLCode:              req.GLCode,
		OriginalAmount:      req.OriginalAmount,
		CurrentAmount:       req.OriginalAmount,
		BillbackAssignments: []models.BillbackAssignment{},
	}

	mapping, err := s.resolver.Resolve(ctx, req.PropertyID, req.GLCode)
	if err != nil {
		return nil, err
	}
	if mapping != nil {
		li.ChargeCode = mapping.ChargeCode
		li.ChargeCodeSource = models.ChargeCodeSourceMapping
	}

	if len(req.Assignments) > 0 {
		if err := validateAssignments(req.Assignments, li.CurrentAmount); err != nil {
			return nil, err
		}
		li.BillbackAssignments = req.Assignments
	}

	if err := s.items.Create(ctx, li); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, validationErrorf("line item %s#%d already exists and cannot be re-created", req.BillID, req.LineIndex)
		}
		return nil, err
	}
	return li, nil
}

// Get returns one line item.
func (s *LineItemService) Get(ctx context.Context, billID string, lineIndex int) (*models.LineItem, error) {
	li, err := s.items.Get(ctx, billID, lineIndex)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "line item"}
	}
	return li, err
}

// List returns line items matching the filter.
func (s *LineItemService) List(ctx context.Context, f store.ListFilter) ([]models.LineItem, error) {
	return s.items.List(ctx, f)
}

// UpdateLineItemRequest carries the override fields of update_line_item.
// Nil pointers leave the corresponding group untouched; the three override
// groups are independent.
type UpdateLineItemRequest struct {
	ChargeCode               *string          `json:"charge_code,omitempty"`
	ChargeCodeOverrideReason string           `json:"charge_code_override_reason,omitempty"`
	CurrentAmount            *decimal.Decimal `json:"current_amount,omitempty"`
	AmountOverrideReason     string           `json:"amount_override_reason,omitempty"`
	ExcludedFromUBI          *bool            `json:"is_excluded_from_ubi,omitempty"`
	ExclusionReason          string           `json:"exclusion_reason,omitempty"`
}

// Update applies override fields to a line item. Overrides that diverge
// from the mapped charge code or the original amount require a non-empty
// reason; setting a value back to what the mapping or ingest produced
// clears the override. No re-aggregation is triggered here.
func (s *LineItemService) Update(ctx context.Context, billID string, lineIndex int, req UpdateLineItemRequest) (*models.LineItem, error) {
	li, err := s.items.Get(ctx, billID, lineIndex)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "line item"}
	}
	if err != nil {
		return nil, err
	}

	if req.ChargeCode != nil {
		mapping, err := s.resolver.Resolve(ctx, li.PropertyID, li.GLCode)
		if err != nil {
			return nil, err
		}
		mapped := ""
		if mapping != nil {
			mapped = mapping.ChargeCode
		}
		switch {
		case *req.ChargeCode == mapped && mapped != "":
			li.ChargeCode = mapped
			li.ChargeCodeSource = models.ChargeCodeSourceMapping
			li.ChargeCodeOverridden = false
			li.ChargeCodeOverrideReason = ""
		default:
			if req.ChargeCodeOverrideReason == "" {
				return nil, validationErrorf("charge_code_override_reason is required when overriding the mapped charge code")
			}
			li.ChargeCode = *req.ChargeCode
			li.ChargeCodeSource = models.ChargeCodeSourceOverride
			li.ChargeCodeOverridden = true
			li.ChargeCodeOverrideReason = req.ChargeCodeOverrideReason
		}
	}

	if req.CurrentAmount != nil {
		if req.CurrentAmount.Equal(li.OriginalAmount) {
			li.CurrentAmount = li.OriginalAmount
			li.AmountOverridden = false
			li.AmountOverrideReason = ""
		} else {
			if req.AmountOverrideReason == "" {
				return nil, validationErrorf("amount_override_reason is required when current_amount differs from original_amount")
			}
			li.CurrentAmount = *req.CurrentAmount
			li.AmountOverridden = true
			li.AmountOverrideReason = req.AmountOverrideReason
		}
	}

	if req.ExcludedFromUBI != nil {
		if *req.ExcludedFromUBI {
			if req.ExclusionReason == "" {
				return nil, validationErrorf("exclusion_reason is required when excluding a line item from UBI")
			}
			li.ExcludedFromUBI = true
			li.ExclusionReason = req.ExclusionReason
		} else {
			li.ExcludedFromUBI = false
			li.ExclusionReason = ""
		}
	}

	updated, err := s.items.Update(ctx, li)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "line item"}
	}
	return updated, err
}

// AssignPeriods replaces a line item's billback assignments. Assignment
// amounts must sum to current_amount within one cent; mismatches are
// rejected rather than silently accepted.
func (s *LineItemService) AssignPeriods(ctx context.Context, billID string, lineIndex int, assignments []models.BillbackAssignment) (*models.LineItem, error) {
	li, err := s.items.Get(ctx, billID, lineIndex)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "line item"}
	}
	if err != nil {
		return nil, err
	}

	if err := validateAssignments(assignments, li.CurrentAmount); err != nil {
		return nil, err
	}

	li.BillbackAssignments = assignments
	updated, err := s.items.Update(ctx, li)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Resource: "line item"}
	}
	return updated, err
}

func validateAssignments(assignments []models.BillbackAssignment, currentAmount decimal.Decimal) error {
	if len(assignments) == 0 {
		return validationErrorf("at least one billback assignment is required")
	}
	sum := decimal.Zero
	for i, a := range assignments {
		if !isISODate(a.PeriodStart) || !isISODate(a.PeriodEnd) {
			return validationErrorf("assignment %d: period dates must be YYYY-MM-DD", i)
		}
		if a.PeriodStart > a.PeriodEnd {
			return validationErrorf("assignment %d: period_start is after period_end", i)
		}
		if a.AmountOverridden && a.AmountOverrideReason == "" {
			return validationErrorf("assignment %d: amount_override_reason is required when amount_overridden is set", i)
		}
		sum = sum.Add(a.Amount)
	}
	if sum.Sub(currentAmount).Abs().GreaterThan(assignmentEpsilon) {
		return validationErrorf("assignment amounts sum to %s but current_amount is %s",
			sum.StringFixed(2), currentAmount.StringFixed(2))
	}
	return nil
}

func isISODate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
