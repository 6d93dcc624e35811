package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Column names every input row must carry.
const (
	ColCompany   = "Company"
	ColWarehouse = "Warehouse"
	ColDate      = "Date"
	ColSKU       = "SKU"
	ColSales     = "Sales"
	ColSOH       = "SOH"
	ColOpenPO    = "Open_PO"
	ColOpenSO    = "Open_SO"
	ColPromotion = "Promotion"
	ColFestival  = "Festival"
	ColMinDays   = "Min_Days"
	ColMaxDays   = "Max_Days"
)

// RequiredColumns lists the mandatory fields in input order.
var RequiredColumns = []string{
	ColCompany, ColWarehouse, ColDate, ColSKU, ColSales, ColSOH,
	ColOpenPO, ColOpenSO, ColPromotion, ColFestival, ColMinDays, ColMaxDays,
}

// Single-digit month and day elements also accept zero-padded values.
var dateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	time.RFC3339,
}

// ValidationError explains why a single row was rejected.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var (
	errMissingValue = errors.New("missing value")
	errNotNumeric   = errors.New("not a finite number")
	errBadDate      = errors.New("unrecognised date")
)

// ValidationResult partitions a batch into valid records and malformed rows.
type ValidationResult struct {
	Valid     []domain.SalesRecord
	Malformed []domain.MalformedRow
	Counts    domain.ValidationCounts
}

var columnNameSanitizer = strings.NewReplacer(" ", "", "_", "", ".", "", "-", "", "/", "")

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(strings.TrimPrefix(name, "\ufeff")))
	return columnNameSanitizer.Replace(name)
}

var canonicalColumns = func() map[string]string {
	m := make(map[string]string, len(RequiredColumns))
	for _, c := range RequiredColumns {
		m[normalizeColumnName(c)] = c
	}
	return m
}()

// ReadRows reads a comma-separated file with a header row. Header names are
// matched loosely ("Open PO", "open_po") onto the required column names;
// unknown columns are kept under their original header. Short rows are read
// as-is so validation can report them, and a data line that fails to parse
// is returned with its error instead of aborting the read.
func ReadRows(r io.Reader) ([]RawRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("input has no header row")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	names := make([]string, len(header))
	for i, h := range header {
		if canonical, ok := canonicalColumns[normalizeColumnName(h)]; ok {
			names[i] = canonical
			continue
		}
		names[i] = strings.TrimSpace(h)
	}

	var lines []string
	rows := make([]RawRow, 0)
	for n := 1; ; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to read row %d: %w", n, err)
			}
			if lines == nil {
				lines = strings.Split(string(data), "\n")
			}
			rows = append(rows, RawRow{Row: n, Raw: sourceLines(lines, parseErr), Err: err})
			continue
		}

		fields := make(map[string]string, len(names))
		for i, name := range names {
			if i < len(record) {
				fields[name] = record[i]
			}
		}
		rows = append(rows, RawRow{Row: n, Fields: fields})
	}

	return rows, nil
}

// sourceLines returns the input text spanned by a failed record.
func sourceLines(lines []string, perr *csv.ParseError) string {
	start, end := perr.StartLine-1, perr.Line
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.TrimRight(strings.Join(lines[start:end], "\n"), "\r")
}

// Validate checks every row independently. A row with any required field
// empty or absent, an unparseable date, or a non-numeric quantity is recorded
// as malformed with its original content and never repaired.
func Validate(rows []RawRow) ValidationResult {
	result := ValidationResult{
		Valid: make([]domain.SalesRecord, 0, len(rows)),
	}

	for _, row := range rows {
		var (
			record domain.SalesRecord
			err    = row.Err
		)
		if err == nil {
			record, err = validateRow(row)
		}
		if err != nil {
			log.Warn().
				Int("row", row.Row).
				Interface("fields", row.Fields).
				Str("raw", row.Raw).
				Err(err).
				Msg("malformed row")
			result.Malformed = append(result.Malformed, domain.MalformedRow{
				Row:    row.Row,
				Fields: row.Fields,
				Raw:    row.Raw,
				Reason: err.Error(),
			})
			continue
		}
		result.Valid = append(result.Valid, record)
	}

	result.Counts = domain.ValidationCounts{
		Total:     len(rows),
		Valid:     len(result.Valid),
		Malformed: len(result.Malformed),
	}

	log.Info().
		Int("total", result.Counts.Total).
		Int("valid", result.Counts.Valid).
		Int("skipped", result.Counts.Malformed).
		Msg("validated input rows")

	return result
}

func validateRow(row RawRow) (domain.SalesRecord, error) {
	for _, col := range RequiredColumns {
		if strings.TrimSpace(row.Fields[col]) == "" {
			return domain.SalesRecord{}, &ValidationError{Field: col, Err: errMissingValue}
		}
	}

	record := domain.SalesRecord{
		Row:       row.Row,
		Company:   strings.TrimSpace(row.Fields[ColCompany]),
		Warehouse: strings.TrimSpace(row.Fields[ColWarehouse]),
		SKU:       strings.TrimSpace(row.Fields[ColSKU]),
		Promotion: strings.TrimSpace(row.Fields[ColPromotion]),
		Festival:  strings.TrimSpace(row.Fields[ColFestival]),
	}

	numerics := []struct {
		col string
		dst *float64
	}{
		{ColSales, &record.Sales},
		{ColSOH, &record.SOH},
		{ColOpenPO, &record.OpenPO},
		{ColOpenSO, &record.OpenSO},
		{ColMinDays, &record.MinDays},
		{ColMaxDays, &record.MaxDays},
	}
	for _, n := range numerics {
		v, err := parseNumber(row.Fields[n.col])
		if err != nil {
			return domain.SalesRecord{}, &ValidationError{Field: n.col, Value: row.Fields[n.col], Err: err}
		}
		*n.dst = v
	}

	date, err := parseDate(row.Fields[ColDate])
	if err != nil {
		return domain.SalesRecord{}, &ValidationError{Field: ColDate, Value: row.Fields[ColDate], Err: err}
	}
	record.Date = date

	return record, nil
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotNumeric
	}
	return v, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errBadDate
}
