// Package warehouse renders finalized batches into rows and INSERT
// statements for the external UBI_TRANSACTIONS warehouse table. The target
// types every column as text, so amounts and dates are formatted here, once,
// and string escaping is applied to every value before emission.
package warehouse

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/billbackhq/billback-api/internal/models"
)

// Columns of the warehouse target table, in emission order.
var Columns = []string{
	"Property_ID",
	"AR_Code_Mapping",
	"Utility_Name",
	"Utility_Amount",
	"Billback_Month_Start",
	"Billback_Month_End",
	"RunDate",
	"Memo",
}

// Row is one warehouse row. Every field is already formatted as text:
// Utility_Amount is a fixed two-decimal string, RunDate an ISO-8601 string.
// RunDate and Memo are batch-level and identical across a batch's rows.
type Row struct {
	PropertyID         string `json:"Property_ID"`
	ARCodeMapping      string `json:"AR_Code_Mapping"`
	UtilityName        string `json:"Utility_Name"`
	UtilityAmount      string `json:"Utility_Amount"`
	BillbackMonthStart string `json:"Billback_Month_Start"`
	BillbackMonthEnd   string `json:"Billback_Month_End"`
	RunDate            string `json:"RunDate"`
	Memo               string `json:"Memo"`
}

// FromMasterBill builds the warehouse row for one master bill. GL codes and
// line item detail are intentionally absent; they live only in the master
// bill's provenance.
func FromMasterBill(mb models.MasterBill, runDate, memo string) Row {
	return Row{
		PropertyID:         mb.PropertyID,
		ARCodeMapping:      mb.ChargeCode,
		UtilityName:        mb.UtilityName,
		UtilityAmount:      mb.UtilityAmount.StringFixed(2),
		BillbackMonthStart: mb.PeriodStart,
		BillbackMonthEnd:   mb.PeriodEnd,
		RunDate:            runDate,
		Memo:               memo,
	}
}

func (r Row) values() []string {
	return []string{
		r.PropertyID,
		r.ARCodeMapping,
		r.UtilityName,
		r.UtilityAmount,
		r.BillbackMonthStart,
		r.BillbackMonthEnd,
		r.RunDate,
		r.Memo,
	}
}

// EscapeString makes a value safe inside a single-quoted SQL literal by
// doubling embedded quotes and dropping control characters the warehouse
// loader cannot ingest.
func EscapeString(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\x00', '\r':
			return -1
		}
		return r
	}, s)
	return strings.ReplaceAll(s, "'", "''")
}

// InsertStatement renders one INSERT for the given table and row.
func InsertStatement(table string, r Row) string {
	vals := r.values()
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = "'" + EscapeString(v) + "'"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(Columns, ", "), strings.Join(quoted, ", "))
}

// InsertStatements renders one INSERT per row, preserving row order.
func InsertStatements(table string, rows []Row) []string {
	stmts := make([]string, 0, len(rows))
	for _, r := range rows {
		stmts = append(stmts, InsertStatement(table, r))
	}
	return stmts
}

// CSV renders the rows with a header line, quoting per RFC 4180 so embedded
// delimiters and quotes in memo text cannot break the file apart.
func CSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r.values()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
