package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Columns is the header shared by the table and CSV renderings.
var Columns = []string{"SKU", "Status", "Forecast", "SOH", "Adjusted SOH", "Open PO", "Open SO", "Procurement Qty", "Order"}

// Round2 formats v rounded half away from zero to 2 decimals, trimming trailing zeros.
func Round2(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func record(row domain.SummaryRow) []string {
	return []string{
		row.SKU,
		domain.SKUStatusLabel(row.Status),
		Round2(row.Forecast),
		decimal.NewFromFloat(row.SOH).String(),
		Round2(row.AdjustedSOH),
		decimal.NewFromFloat(row.OpenPO).String(),
		decimal.NewFromFloat(row.OpenSO).String(),
		Round2(row.ProcurementQty),
		orderCell(row.Order),
	}
}

func orderCell(o *domain.OrderAttempt) string {
	if o == nil {
		return "-"
	}
	return fmt.Sprintf("%s (%d)", domain.OrderStateLabel(o.State), o.Attempts)
}

// WriteTable renders the summary as an aligned text table.
func WriteTable(w io.Writer, summary *domain.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(Columns, "\t"))
	for _, row := range summary.Rows {
		fmt.Fprintln(tw, strings.Join(record(row), "\t"))
	}
	return tw.Flush()
}

// WriteCSV renders the summary as CSV with a header row.
func WriteCSV(w io.Writer, summary *domain.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, row := range summary.Rows {
		if err := cw.Write(record(row)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Describe is the one-paragraph outcome of a run, used for the final log line and CLI output.
func Describe(r *domain.RunReport) string {
	c := r.Summary.Counts
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d rows (%d valid, %d malformed); ", r.RunID, r.Validation.Total, r.Validation.Valid, r.Validation.Malformed)
	fmt.Fprintf(&b, "%d SKUs processed, %d skipped, %d forecast failures", c.SKUsProcessed, c.SKUsSkipped, c.SKUsFailed)
	if r.OrdersSent {
		fmt.Fprintf(&b, "; orders %d attempted, %d placed, %d need manual intervention", c.OrdersAttempted, c.OrdersSucceeded, c.OrdersExhausted)
	}
	return b.String()
}
