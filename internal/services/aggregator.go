package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/billbackhq/billback-api/internal/models"
)

// EligibleLineItemSource enumerates line items on is_ubi accounts.
type EligibleLineItemSource interface {
	ListUBIEligible(ctx context.Context) ([]models.LineItem, error)
}

// MasterBillSink atomically replaces the master bill set.
type MasterBillSink interface {
	ReplaceAll(ctx context.Context, bills []models.MasterBill) error
}

// AggregationResult summarizes one master bill run.
type AggregationResult struct {
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Aggregator rolls eligible line item assignments into master bills keyed
// by (property, charge code, utility, period). Each run replaces the prior
// set wholesale, so re-running with unchanged inputs is idempotent.
type Aggregator struct {
	items    EligibleLineItemSource
	resolver ChargeCodeResolver
	sink     MasterBillSink
	now      func() time.Time
}

func NewAggregator(items EligibleLineItemSource, resolver ChargeCodeResolver, sink MasterBillSink, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{items: items, resolver: resolver, sink: sink, now: now}
}

// MasterBillID builds the stable composite key string used as the master
// bill identity and referenced by batch snapshots.
func MasterBillID(propertyID, chargeCode, utilityName, periodStart, periodEnd string) string {
	return strings.Join([]string{propertyID, chargeCode, utilityName, periodStart, periodEnd}, "|")
}

// Generate runs the aggregation. With a date range, filtering happens at
// the assignment granularity: one line item can contribute inside the range
// while its other assignments fall outside. Any load failure aborts the
// whole run; no partial master bill set is ever published.
func (a *Aggregator) Generate(ctx context.Context, dateRange *models.DateRange) (*AggregationResult, error) {
	if dateRange != nil {
		if !isISODate(dateRange.Start) || !isISODate(dateRange.End) {
			return nil, validationErrorf("date range bounds must be YYYY-MM-DD")
		}
		if dateRange.Start > dateRange.End {
			return nil, validationErrorf("date range start is after end")
		}
	}

	items, err := a.items.ListUBIEligible(ctx)
	if err != nil {
		return nil, &AggregationError{Stage: "load line items", Err: err}
	}

	buckets := map[string]*models.MasterBill{}
	for _, li := range items {
		if li.ExcludedFromUBI {
			continue
		}
		if li.ChargeCode == "" || len(li.BillbackAssignments) == 0 {
			continue
		}

		// A manually overridden charge code can sit on a GL code with no
		// mapping. Those items still aggregate, with an empty utility name
		// in the composite key, rather than silently dropping reviewed
		// amounts.
		utilityName := ""
		mapping, err := a.resolver.Resolve(ctx, li.PropertyID, li.GLCode)
		if err != nil {
			return nil, &AggregationError{Stage: "resolve charge codes", Err: err}
		}
		if mapping != nil {
			utilityName = mapping.UtilityName
		}

		for _, assignment := range li.BillbackAssignments {
			if dateRange != nil && !dateRange.Contains(assignment.PeriodStart, assignment.PeriodEnd) {
				continue
			}
			id := MasterBillID(li.PropertyID, li.ChargeCode, utilityName, assignment.PeriodStart, assignment.PeriodEnd)
			mb, ok := buckets[id]
			if !ok {
				mb = &models.MasterBill{
					ID:              id,
					PropertyID:      li.PropertyID,
					ChargeCode:      li.ChargeCode,
					UtilityName:     utilityName,
					PeriodStart:     assignment.PeriodStart,
					PeriodEnd:       assignment.PeriodEnd,
					UtilityAmount:   decimal.Zero,
					SourceLineItems: []models.SourceLineItem{},
					Status:          models.MasterBillStatusDraft,
				}
				buckets[id] = mb
			}
			mb.UtilityAmount = mb.UtilityAmount.Add(assignment.Amount)
			mb.SourceLineItems = append(mb.SourceLineItems, models.SourceLineItem{
				BillID:         li.BillID,
				LineIndex:      li.LineIndex,
				GLCode:         li.GLCode,
				Amount:         assignment.Amount,
				Overridden:     li.AmountOverridden || assignment.AmountOverridden,
				OverrideReason: firstNonEmpty(assignment.AmountOverrideReason, li.AmountOverrideReason),
			})
		}
	}

	ids := make([]string, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	generatedAt := a.now().UTC()
	total := decimal.Zero
	bills := make([]models.MasterBill, 0, len(ids))
	for _, id := range ids {
		mb := buckets[id]
		mb.GeneratedAt = generatedAt
		bills = append(bills, *mb)
		total = total.Add(mb.UtilityAmount)
	}

	if err := a.sink.ReplaceAll(ctx, bills); err != nil {
		return nil, &AggregationError{Stage: "persist master bills", Err: err}
	}

	return &AggregationResult{Count: len(bills), TotalAmount: total}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
