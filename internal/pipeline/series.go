package pipeline

import (
	"sort"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// skuGroup is the validated history of one SKU, in input order.
type skuGroup struct {
	SKU     string
	Records []domain.SalesRecord
}

// groupBySKU partitions records by SKU, keeping groups in order of first appearance.
func groupBySKU(records []domain.SalesRecord) []skuGroup {
	index := make(map[string]int)
	groups := make([]skuGroup, 0)
	for _, r := range records {
		i, ok := index[r.SKU]
		if !ok {
			i = len(groups)
			index[r.SKU] = i
			groups = append(groups, skuGroup{SKU: r.SKU})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}

// sortedByDate returns a copy of records ordered by date; rows sharing a date keep input order.
func sortedByDate(records []domain.SalesRecord) []domain.SalesRecord {
	sorted := make([]domain.SalesRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// PrepareSeries builds the forecasting input for one SKU: timestamp, demand and
// the two binary regressors. Every other field is dropped here.
func PrepareSeries(records []domain.SalesRecord) domain.Series {
	sorted := sortedByDate(records)

	series := domain.Series{Points: make([]domain.SeriesPoint, 0, len(sorted))}
	if len(sorted) > 0 {
		series.SKU = sorted[0].SKU
	}
	for _, r := range sorted {
		series.Points = append(series.Points, domain.SeriesPoint{
			Timestamp: r.Date,
			Demand:    r.Sales,
			Promotion: flag(r.Promotion),
			Festival:  flag(r.Festival),
		})
	}
	return series
}

// Snapshot returns the stock position of the most recent observation, not an
// aggregate over history. ok is false for an empty slice.
func Snapshot(records []domain.SalesRecord) (domain.InventorySnapshot, bool) {
	if len(records) == 0 {
		return domain.InventorySnapshot{}, false
	}
	sorted := sortedByDate(records)
	last := sorted[len(sorted)-1]
	return domain.InventorySnapshot{
		SKU:       last.SKU,
		Company:   last.Company,
		Warehouse: last.Warehouse,
		Date:      last.Date,
		SOH:       last.SOH,
		OpenPO:    last.OpenPO,
		OpenSO:    last.OpenSO,
		MinDays:   last.MinDays,
		MaxDays:   last.MaxDays,
	}, true
}

func flag(v string) int {
	if domain.IsYes(v) {
		return 1
	}
	return 0
}
