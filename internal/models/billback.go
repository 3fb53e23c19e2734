package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Charge code sources
const (
	ChargeCodeSourceMapping  = "mapping"
	ChargeCodeSourceOverride = "override"
)

// Batch lifecycle states. Transitions only move forward:
// draft -> finalized -> exported.
const (
	BatchStatusDraft     = "draft"
	BatchStatusFinalized = "finalized"
	BatchStatusExported  = "exported"
)

// MasterBillStatusDraft is the only master bill state; the full set is
// regenerated from source line items on every aggregation run.
const MasterBillStatusDraft = "draft"

// BillbackAssignment splits a line item's charge across billback periods.
// Period dates are ISO (YYYY-MM-DD) strings to match the warehouse target.
type BillbackAssignment struct {
	PeriodStart          string          `json:"period_start"`
	PeriodEnd            string          `json:"period_end"`
	Amount               decimal.Decimal `json:"amount"`
	AmountOverridden     bool            `json:"amount_overridden"`
	AmountOverrideReason string          `json:"amount_override_reason,omitempty"`
}

// LineItem is one row of a parsed invoice. The (bill_id, line_index) key is
// stable for the lifetime of the bill; original_amount never changes after
// ingest.
type LineItem struct {
	BillID    string `json:"bill_id"`
	LineIndex int    `json:"line_index"`

	VendorID      string `json:"vendor_id"`
	AccountNumber string `json:"account_number"`
	PropertyID    string `json:"property_id"`
	GLCode        string `json:"gl_code"`

	OriginalAmount       decimal.Decimal `json:"original_amount"`
	CurrentAmount        decimal.Decimal `json:"current_amount"`
	AmountOverridden     bool            `json:"amount_overridden"`
	AmountOverrideReason string          `json:"amount_override_reason,omitempty"`

	ChargeCode               string `json:"charge_code"`
	ChargeCodeSource         string `json:"charge_code_source"`
	ChargeCodeOverridden     bool   `json:"charge_code_overridden"`
	ChargeCodeOverrideReason string `json:"charge_code_override_reason,omitempty"`

	ExcludedFromUBI bool   `json:"is_excluded_from_ubi"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`

	BillbackAssignments []BillbackAssignment `json:"billback_assignments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountFlag marks a (vendor, account, property) tuple for monitoring
// and/or UBI billback. The two flags are independent.
type AccountFlag struct {
	VendorID      string    `json:"vendor_id"`
	AccountNumber string    `json:"account_number"`
	PropertyID    string    `json:"property_id"`
	IsTracked     bool      `json:"is_tracked"`
	IsUBI         bool      `json:"is_ubi"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChargeCodeMapping maps a GL code to a billback charge code for one
// property, or for every property when PropertyID is "*".
type ChargeCodeMapping struct {
	PropertyID  string    `json:"property_id"`
	GLCode      string    `json:"gl_code"`
	ChargeCode  string    `json:"charge_code"`
	UtilityName string    `json:"utility_name"`
	IsBillable  bool      `json:"is_billable"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WildcardPropertyID matches any property in a charge code mapping.
const WildcardPropertyID = "*"

// SourceLineItem is drill-down provenance on a master bill. It never reaches
// the warehouse export.
type SourceLineItem struct {
	BillID         string          `json:"bill_id"`
	LineIndex      int             `json:"line_index"`
	GLCode         string          `json:"gl_code"`
	Amount         decimal.Decimal `json:"amount"`
	Overridden     bool            `json:"overridden"`
	OverrideReason string          `json:"override_reason,omitempty"`
}

// MasterBill aggregates line item charges for one
// (property, charge code, utility, period) bucket.
type MasterBill struct {
	ID              string           `json:"master_bill_id"`
	PropertyID      string           `json:"property_id"`
	ChargeCode      string           `json:"charge_code"`
	UtilityName     string           `json:"utility_name"`
	PeriodStart     string           `json:"period_start"`
	PeriodEnd       string           `json:"period_end"`
	UtilityAmount   decimal.Decimal  `json:"utility_amount"`
	SourceLineItems []SourceLineItem `json:"source_line_items"`
	Status          string           `json:"status"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Batch groups master bills for warehouse export. master_bill_ids is a
// snapshot taken at creation; finalize and export never re-query.
type Batch struct {
	BatchID     string `json:"batch_id"`
	BatchName   string `json:"batch_name"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Memo        string `json:"memo"`

	MasterBillIDs    []string        `json:"master_bill_ids"`
	TotalMasterBills int             `json:"total_master_bills"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PropertiesCount  int             `json:"properties_count"`

	Status      string `json:"status"`
	RunDate     string `json:"run_date,omitempty"`
	ReviewedUTC string `json:"reviewed_utc,omitempty"`
	ReviewedBy  string `json:"reviewed_by,omitempty"`
	ExportedUTC string `json:"exported_utc,omitempty"`
	ExportedBy  string `json:"exported_by,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DateRange bounds an aggregation run. Both ends are inclusive ISO dates.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether an assignment period lies fully inside the range.
func (r DateRange) Contains(periodStart, periodEnd string) bool {
	return periodStart >= r.Start && periodEnd <= r.End
}
