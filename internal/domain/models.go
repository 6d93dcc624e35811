package domain

import "time"

// SalesRecord is one validated observation for a SKU at a warehouse.
type SalesRecord struct {
	Row       int       `json:"row"`
	Company   string    `json:"company"`
	Warehouse string    `json:"warehouse"`
	Date      time.Time `json:"date"`
	SKU       string    `json:"sku"`
	Sales     float64   `json:"sales"`
	SOH       float64   `json:"soh"`
	OpenPO    float64   `json:"open_po"`
	OpenSO    float64   `json:"open_so"`
	Promotion string    `json:"promotion"`
	Festival  string    `json:"festival"`
	MinDays   float64   `json:"min_days"`
	MaxDays   float64   `json:"max_days"`
}

// MalformedRow keeps the original content of a rejected row and why it was rejected.
type MalformedRow struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
	Raw    string            `json:"raw,omitempty"`
	Reason string            `json:"reason"`
}

// ValidationCounts summarises a validation pass.
type ValidationCounts struct {
	Total     int `json:"total"`
	Valid     int `json:"valid"`
	Malformed int `json:"malformed"`
}

// SeriesPoint is one day of demand with its exogenous regressors.
type SeriesPoint struct {
	Timestamp time.Time `json:"ds"`
	Demand    float64   `json:"y"`
	Promotion int       `json:"promotion"`
	Festival  int       `json:"festival"`
}

// Series is the date-ordered demand history of a single SKU.
type Series struct {
	SKU    string        `json:"sku"`
	Points []SeriesPoint `json:"points"`
}

// ForecastResult is the aggregate demand predicted over a horizon.
type ForecastResult struct {
	Quantity    float64 `json:"quantity"`
	HorizonDays int     `json:"horizon_days"`
}

// InventorySnapshot is the most recent observation of a SKU's stock position.
type InventorySnapshot struct {
	SKU       string    `json:"sku"`
	Company   string    `json:"company"`
	Warehouse string    `json:"warehouse"`
	Date      time.Time `json:"date"`
	SOH       float64   `json:"soh"`
	OpenPO    float64   `json:"open_po"`
	OpenSO    float64   `json:"open_so"`
	MinDays   float64   `json:"min_days"`
	MaxDays   float64   `json:"max_days"`
}

// ProcurementDecision is the replenishment outcome for one SKU.
type ProcurementDecision struct {
	SKU            string  `json:"sku"`
	Forecast       float64 `json:"forecast"`
	AdjustedSOH    float64 `json:"adjusted_soh"`
	MinInventory   float64 `json:"min_inventory"`
	MaxInventory   float64 `json:"max_inventory"`
	ProcurementQty float64 `json:"procurement_qty"`
	Reason         string  `json:"reason"`
}

// PurchaseOrder is the payload sent to the ordering capability.
type PurchaseOrder struct {
	IdempotencyKey string  `json:"-"`
	SKU            string  `json:"sku"`
	Quantity       float64 `json:"quantity"`
	Company        string  `json:"company"`
	Warehouse      string  `json:"warehouse"`
}

// OrderAttempt records how a purchase order submission ended.
type OrderAttempt struct {
	SKU                string     `json:"sku"`
	Quantity           float64    `json:"quantity"`
	Company            string     `json:"company"`
	Warehouse          string     `json:"warehouse"`
	State              OrderState `json:"state"`
	Attempts           int        `json:"attempts"`
	ManualIntervention bool       `json:"manual_intervention"`
	Error              string     `json:"error,omitempty"`
}

// Succeeded reports whether the ordering capability accepted the order.
func (a OrderAttempt) Succeeded() bool {
	return a.State == OrderSucceeded
}

// SummaryRow is the per-SKU line of a run summary.
type SummaryRow struct {
	SKU            string        `json:"sku"`
	Status         SKUStatus     `json:"status"`
	Forecast       float64       `json:"forecast"`
	HorizonDays    int           `json:"horizon_days"`
	SOH            float64       `json:"soh"`
	AdjustedSOH    float64       `json:"adjusted_soh"`
	OpenPO         float64       `json:"open_po"`
	OpenSO         float64       `json:"open_so"`
	MinInventory   float64       `json:"min_inventory"`
	MaxInventory   float64       `json:"max_inventory"`
	ProcurementQty float64       `json:"procurement_qty"`
	Reason         string        `json:"reason,omitempty"`
	Error          string        `json:"error,omitempty"`
	Order          *OrderAttempt `json:"order,omitempty"`
}

// RunCounts are the totals reported at the end of a run.
type RunCounts struct {
	SKUsProcessed   int `json:"skus_processed"`
	SKUsSkipped     int `json:"skus_skipped"`
	SKUsFailed      int `json:"skus_failed"`
	OrdersAttempted int `json:"orders_attempted"`
	OrdersSucceeded int `json:"orders_succeeded"`
	OrdersExhausted int `json:"orders_exhausted"`
}

// Summary holds one row per SKU in order of first appearance in the input.
type Summary struct {
	Rows   []SummaryRow `json:"rows"`
	Counts RunCounts    `json:"counts"`
}

// RunReport is everything a caller learns from one replenishment run.
type RunReport struct {
	RunID       string           `json:"run_id"`
	Source      string           `json:"source"`
	HorizonDays int              `json:"horizon_days"`
	OrdersSent  bool             `json:"orders_sent"`
	Validation  ValidationCounts `json:"validation"`
	Malformed   []MalformedRow   `json:"malformed,omitempty"`
	Summary     Summary          `json:"summary"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}
