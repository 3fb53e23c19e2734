package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/billbackhq/billback-api/internal/warehouse"
)

const summarySheetName = "UBI Transactions"

// BuildWorkbook renders the export rows into an xlsx workbook: a summary
// sheet with every row, plus one sheet per property for the manual
// per-property upload flow.
func BuildWorkbook(rows []warehouse.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheetName); err != nil {
		return nil, err
	}
	if err := writeSheet(f, summarySheetName, rows); err != nil {
		return nil, err
	}

	byProperty := map[string][]warehouse.Row{}
	for _, r := range rows {
		byProperty[r.PropertyID] = append(byProperty[r.PropertyID], r)
	}
	properties := make([]string, 0, len(byProperty))
	for p := range byProperty {
		properties = append(properties, p)
	}
	sort.Strings(properties)

	for _, property := range properties {
		sheet := sheetName(property)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		if err := writeSheet(f, sheet, byProperty[property]); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, rows []warehouse.Row) error {
	header := make([]interface{}, len(warehouse.Columns))
	for i, c := range warehouse.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cells := []interface{}{
			r.PropertyID, r.ARCodeMapping, r.UtilityName, r.UtilityAmount,
			r.BillbackMonthStart, r.BillbackMonthEnd, r.RunDate, r.Memo,
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &cells); err != nil {
			return err
		}
	}
	return nil
}

// sheetName makes a property ID safe as an xlsx sheet name (31 char limit,
// restricted character set).
func sheetName(propertyID string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, propertyID)
	if cleaned == "" {
		cleaned = "Property"
	}
	if len(cleaned) > 31 {
		cleaned = cleaned[:31]
	}
	return cleaned
}
