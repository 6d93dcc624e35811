package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MIME type reported for .xlsx workbooks.
const XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// IsXLSX reports whether a file name or MIME type denotes an .xlsx workbook.
func IsXLSX(name, mimeType string) bool {
	if mimeType == XLSXMimeType {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

// XLSXToCSV converts the first sheet of an XLSX workbook to CSV.
// It expects the first row to be a header compatible with downstream CSV processing.
// Cells are written with their raw values so number formats never leak into
// the CSV; date-formatted serials are written as 2006-01-02.
func XLSXToCSV(r io.Reader, w io.Writer) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("xlsx has no sheets")
	}
	name := sheets[0]

	rows, err := f.Rows(name)
	if err != nil {
		return fmt.Errorf("failed to read rows from sheet %s: %w", name, err)
	}
	defer rows.Close()

	dates := newDateCells(f, name)

	out := csv.NewWriter(w)
	width := 0
	for rowNum := 1; rows.Next(); rowNum++ {
		record, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("failed to read row from sheet %s: %w", name, err)
		}
		for i, value := range record {
			record[i] = dates.render(i+1, rowNum, value)
		}
		// excelize drops trailing empty cells; pad so every record matches the header
		if width == 0 {
			width = len(record)
		}
		for len(record) < width {
			record = append(record, "")
		}
		if err := out.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("error iterating rows in sheet %s: %w", name, err)
	}

	out.Flush()
	return out.Error()
}

// dateCells turns date-styled serial numbers back into dates.
type dateCells struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	d := &dateCells{f: f, sheet: sheet, styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}
	return d
}

func (d *dateCells) render(col, row int, value string) string {
	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return value
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return value
	}
	styleIdx, err := d.f.GetCellStyle(d.sheet, cell)
	if err != nil || !d.isDateStyle(styleIdx) {
		return value
	}
	t, err := excelize.ExcelDateToTime(serial, d.date1904)
	if err != nil {
		return value
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

func (d *dateCells) isDateStyle(idx int) bool {
	if idx == 0 {
		return false
	}
	if isDate, ok := d.styles[idx]; ok {
		return isDate
	}
	isDate := false
	if style, err := d.f.GetStyle(idx); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		} else {
			isDate = isBuiltInDateFormat(style.NumFmt)
		}
	}
	d.styles[idx] = isDate
	return isDate
}

// Built-in number formats that render dates, including the CJK locale ranges.
func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 31, id == 36:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code has a day or year
// token outside quoted literals and bracketed sections.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[':
			inBracket = true
		case c == ']':
			inBracket = false
		case inBracket:
		case c == 'd' || c == 'D' || c == 'y' || c == 'Y':
			return true
		}
	}
	return false
}

// Normalize returns CSV bytes for data, converting it first when it is an XLSX workbook.
func Normalize(name, mimeType string, data []byte) ([]byte, error) {
	if !IsXLSX(name, mimeType) {
		return data, nil
	}
	var buf bytes.Buffer
	if err := XLSXToCSV(bytes.NewReader(data), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
