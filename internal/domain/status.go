package domain

import "strings"

// SKUStatus is the per-SKU outcome of a run.
type SKUStatus string

const (
	SKUProcessed      SKUStatus = "processed"
	SKUSkipped        SKUStatus = "skipped"
	SKUForecastFailed SKUStatus = "forecast_failed"
)

// OrderState follows Pending -> Attempting(n) -> Succeeded | Exhausted.
type OrderState string

const (
	OrderPending    OrderState = "pending"
	OrderAttempting OrderState = "attempting"
	OrderSucceeded  OrderState = "succeeded"
	OrderExhausted  OrderState = "exhausted"
)

var skuStatusLabels = map[SKUStatus]string{
	SKUProcessed:      "Processed",
	SKUSkipped:        "Skipped",
	SKUForecastFailed: "Forecast failed",
}

var orderStateLabels = map[OrderState]string{
	OrderPending:    "Pending",
	OrderAttempting: "Attempting",
	OrderSucceeded:  "Ordered",
	OrderExhausted:  "Manual intervention required",
}

// SKUStatusLabel returns a human-readable label for a SKU status.
func SKUStatusLabel(status SKUStatus) string {
	if label, ok := skuStatusLabels[status]; ok {
		return label
	}

	return "Unknown"
}

// OrderStateLabel returns a human-readable label for an order state.
func OrderStateLabel(state OrderState) string {
	if label, ok := orderStateLabels[state]; ok {
		return label
	}

	return "Not ordered"
}

// IsYes reports whether an externally encoded flag is set. Only the exact value "YES" counts;
// anything else, including "yes" or typos, is treated as unset.
func IsYes(flag string) bool {
	return strings.TrimSpace(flag) == "YES"
}
