package pipeline

import (
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const header = "Company,Warehouse,Date,SKU,Sales,SOH,Open_PO,Open_SO,Promotion,Festival,Min_Days,Max_Days\n"

func readAndValidate(t *testing.T, body string) ValidationResult {
	t.Helper()
	rows, err := ReadRows(strings.NewReader(body))
	require.NoError(t, err)
	return Validate(rows)
}

func TestValidateAcceptsCompleteRows(t *testing.T) {
	res := readAndValidate(t, header+
		"Acme,WH1,2024-01-01,A1,10,50,20,10,YES,NO,1,3\n"+
		"Acme,WH1,2024-01-02,A1,12.5,-4,0,0,NO,NO,1,3\n")

	require.Equal(t, 2, res.Counts.Total)
	require.Equal(t, 2, res.Counts.Valid)
	require.Equal(t, 0, res.Counts.Malformed)

	first := res.Valid[0]
	require.Equal(t, 1, first.Row)
	require.Equal(t, "Acme", first.Company)
	require.Equal(t, "WH1", first.Warehouse)
	require.Equal(t, "A1", first.SKU)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), first.Date)
	require.InDelta(t, 10.0, first.Sales, 1e-9)
	require.InDelta(t, 50.0, first.SOH, 1e-9)
	require.InDelta(t, 20.0, first.OpenPO, 1e-9)
	require.InDelta(t, 10.0, first.OpenSO, 1e-9)
	require.Equal(t, "YES", first.Promotion)
	require.InDelta(t, 3.0, first.MaxDays, 1e-9)

	require.InDelta(t, -4.0, res.Valid[1].SOH, 1e-9)
}

func TestValidateRejectsMalformedRows(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		field string
	}{
		{"missing SOH", "Acme,WH1,2024-01-01,A1,10,,20,10,YES,NO,1,3", ColSOH},
		{"blank company", "  ,WH1,2024-01-01,A1,10,5,20,10,YES,NO,1,3", ColCompany},
		{"non numeric sales", "Acme,WH1,2024-01-01,A1,ten,5,20,10,YES,NO,1,3", ColSales},
		{"thousands separator", "Acme,WH1,2024-01-01,A1,\"1,000\",5,20,10,YES,NO,1,3", ColSales},
		{"nan open po", "Acme,WH1,2024-01-01,A1,1,5,NaN,10,YES,NO,1,3", ColOpenPO},
		{"bad max days", "Acme,WH1,2024-01-01,A1,1,5,2,10,YES,NO,1,x", ColMaxDays},
		{"bad date", "Acme,WH1,yesterday,A1,1,5,2,10,YES,NO,1,3", ColDate},
		{"short row", "Acme,WH1,2024-01-01,A1,1,5", ColOpenPO},
		{"missing festival", "Acme,WH1,2024-01-01,A1,1,5,2,10,YES,,1,3", ColFestival},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := readAndValidate(t, header+tc.line+"\n")
			require.Empty(t, res.Valid)
			require.Len(t, res.Malformed, 1)
			require.Equal(t, 1, res.Malformed[0].Row)
			require.Contains(t, res.Malformed[0].Reason, tc.field)

			row, err := validateRow(RawRow{Row: 1, Fields: res.Malformed[0].Fields})
			require.Error(t, err)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			require.Equal(t, tc.field, vErr.Field)
			require.Empty(t, row.SKU)
		})
	}
}

func TestValidateKeepsOriginalContentOfMalformedRow(t *testing.T) {
	res := readAndValidate(t, header+"Acme,WH1,2024-01-01,A1,10,,20,10,YES,NO,1,3\n")

	require.Len(t, res.Malformed, 1)
	fields := res.Malformed[0].Fields
	require.Equal(t, "", fields[ColSOH])
	require.Equal(t, "10", fields[ColSales])
	require.Equal(t, "A1", fields[ColSKU])
}

func TestValidateMissingColumnMarksEveryRowMalformed(t *testing.T) {
	body := "Company,Warehouse,Date,SKU,Sales,Open_PO,Open_SO,Promotion,Festival,Min_Days,Max_Days\n" +
		"Acme,WH1,2024-01-01,A1,10,20,10,YES,NO,1,3\n"

	res := readAndValidate(t, body)
	require.Equal(t, 1, res.Counts.Malformed)
	require.Contains(t, res.Malformed[0].Reason, ColSOH)
}

func TestReadRowsNormalisesHeaders(t *testing.T) {
	body := "company, warehouse ,date,sku,sales,soh,Open PO,open-so,PROMOTION,Festival,min days,MAX_DAYS,Notes\n" +
		"Acme,WH1,2024-01-01,A1,10,50,20,10,YES,NO,1,3,fragile\n"

	rows, err := ReadRows(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "20", rows[0].Fields[ColOpenPO])
	require.Equal(t, "10", rows[0].Fields[ColOpenSO])
	require.Equal(t, "fragile", rows[0].Fields["Notes"])

	res := Validate(rows)
	require.Equal(t, 1, res.Counts.Valid)
}

func TestReadRowsToleratesStrayQuotes(t *testing.T) {
	res := readAndValidate(t, header+
		"Acme,WH1,2024-01-01,A1,10,50,20,10,NO,NO,1,3\n"+
		"Acme,WH1,2024-01-01,B\"2,10,50,20,10,NO,NO,1,3\n"+
		"Acme,WH1,2024-01-01,C3,10,50,20,10,NO,NO,1,3\n")

	require.Equal(t, 3, res.Counts.Total)
	require.Equal(t, 3, res.Counts.Valid)
	require.Equal(t, "A1", res.Valid[0].SKU)
	require.Equal(t, `B"2`, res.Valid[1].SKU)
	require.Equal(t, "C3", res.Valid[2].SKU)
}

func TestValidateKeepsUnparseableLinesAsMalformed(t *testing.T) {
	rows, err := ReadRows(strings.NewReader(header + "Acme,WH1,2024-01-01,A1,10,50,20,10,NO,NO,1,3\n"))
	require.NoError(t, err)
	rows = append(rows, RawRow{
		Row: 2,
		Raw: `Acme,"WH1`,
		Err: &csv.ParseError{StartLine: 3, Line: 3, Column: 10, Err: csv.ErrQuote},
	})

	res := Validate(rows)
	require.Equal(t, 2, res.Counts.Total)
	require.Equal(t, 1, res.Counts.Valid)
	require.Len(t, res.Malformed, 1)
	require.Equal(t, 2, res.Malformed[0].Row)
	require.Equal(t, `Acme,"WH1`, res.Malformed[0].Raw)
	require.Contains(t, res.Malformed[0].Reason, "line 3")
}

func TestSourceLines(t *testing.T) {
	lines := strings.Split("h\nrow one\r\nrow\ntwo\n", "\n")
	require.Equal(t, "row one", sourceLines(lines, &csv.ParseError{StartLine: 2, Line: 2}))
	require.Equal(t, "row\ntwo", sourceLines(lines, &csv.ParseError{StartLine: 3, Line: 4}))
	require.Empty(t, sourceLines(lines, &csv.ParseError{StartLine: 9, Line: 9}))
}

func TestReadRowsRejectsEmptyInput(t *testing.T) {
	_, err := ReadRows(strings.NewReader(""))
	require.Error(t, err)
}

func TestValidateDateLayouts(t *testing.T) {
	for _, raw := range []string{
		"2024-03-05", "2024/03/05", "03/05/2024", "2024-03-05 00:00:00", "2024-03-05T00:00:00Z",
		"3/5/2024", "2024-3-5", "2024/3/5", "2024-03-05 09:30",
	} {
		d, err := parseDate(raw)
		require.NoError(t, err, raw)
		require.Equal(t, time.March, d.Month())
		require.Equal(t, 5, d.Day())
	}
}
