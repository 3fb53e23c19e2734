package warehouse

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbackhq/billback-api/internal/models"
)

func sampleBill() models.MasterBill {
	return models.MasterBill{
		ID:            "P1|ELEC|Electric|2024-01-01|2024-01-31",
		PropertyID:    "P1",
		ChargeCode:    "ELEC",
		UtilityName:   "Electric",
		PeriodStart:   "2024-01-01",
		PeriodEnd:     "2024-01-31",
		UtilityAmount: decimal.RequireFromString("100.5"),
	}
}

func TestFromMasterBill(t *testing.T) {
	row := FromMasterBill(sampleBill(), "2026-08-01T10:30:00Z", "Jan billback")

	assert.Equal(t, "P1", row.PropertyID)
	assert.Equal(t, "ELEC", row.ARCodeMapping)
	assert.Equal(t, "Electric", row.UtilityName)
	assert.Equal(t, "100.50", row.UtilityAmount)
	assert.Equal(t, "2024-01-01", row.BillbackMonthStart)
	assert.Equal(t, "2024-01-31", row.BillbackMonthEnd)
	assert.Equal(t, "2026-08-01T10:30:00Z", row.RunDate)
	assert.Equal(t, "Jan billback", row.Memo)
}

func TestEscapeString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Electric", want: "Electric"},
		{name: "single quote doubled", input: "O'Hare Plaza", want: "O''Hare Plaza"},
		{name: "multiple quotes", input: "it's the vendor's memo", want: "it''s the vendor''s memo"},
		{name: "null byte dropped", input: "bad\x00value", want: "badvalue"},
		{name: "carriage return dropped", input: "line1\r\nline2", want: "line1\nline2"},
		{name: "empty", input: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeString(tt.input))
		})
	}
}

func TestInsertStatement(t *testing.T) {
	row := FromMasterBill(sampleBill(), "2026-08-01T10:30:00Z", "O'Hare memo")
	stmt := InsertStatement("UBI_TRANSACTIONS", row)

	want := "INSERT INTO UBI_TRANSACTIONS " +
		"(Property_ID, AR_Code_Mapping, Utility_Name, Utility_Amount, Billback_Month_Start, Billback_Month_End, RunDate, Memo) " +
		"VALUES ('P1', 'ELEC', 'Electric', '100.50', '2024-01-01', '2024-01-31', '2026-08-01T10:30:00Z', 'O''Hare memo')"
	assert.Equal(t, want, stmt)
}

func TestInsertStatements_PreservesOrder(t *testing.T) {
	first := FromMasterBill(sampleBill(), "2026-08-01T10:30:00Z", "")
	second := sampleBill()
	second.PropertyID = "P2"
	stmts := InsertStatements("UBI_TRANSACTIONS", []Row{first, FromMasterBill(second, "2026-08-01T10:30:00Z", "")})

	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "'P1'")
	assert.Contains(t, stmts[1], "'P2'")
}

func TestCSV(t *testing.T) {
	row := FromMasterBill(sampleBill(), "2026-08-01T10:30:00Z", `memo with "quotes", and commas`)
	body, err := CSV([]Row{row})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	// RFC 4180: embedded quotes doubled, the whole field quoted.
	assert.Contains(t, lines[1], `"memo with ""quotes"", and commas"`)
}
