package pipeline

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// ComputeTargets scales forecast demand by the SKU's day multipliers.
// maxDays >= minDays is assumed, not checked.
func ComputeTargets(forecastQty, minDays, maxDays float64) (minInventory, maxInventory float64) {
	minInventory = forecastQty * minDays
	maxInventory = forecastQty * maxDays
	log.Debug().
		Float64("min_inventory", minInventory).
		Float64("max_inventory", maxInventory).
		Msg("computed inventory targets")
	return minInventory, maxInventory
}

// ComputeAdjustedSOH is stock on hand plus open purchase orders minus open
// sales orders. Negative results are valid (oversold) and are returned as-is.
func ComputeAdjustedSOH(soh, openPO, openSO float64) float64 {
	adjusted := soh + openPO - openSO
	log.Debug().Float64("adjusted_soh", adjusted).Msg("computed adjusted SOH")
	return adjusted
}

// Decide is the single replenishment decision point: reorder up to
// maxInventory only when adjustedSOH falls below minInventory.
func Decide(sku string, forecastQty, adjustedSOH, minInventory, maxInventory float64) domain.ProcurementDecision {
	decision := domain.ProcurementDecision{
		SKU:          sku,
		Forecast:     forecastQty,
		AdjustedSOH:  adjustedSOH,
		MinInventory: minInventory,
		MaxInventory: maxInventory,
	}

	if adjustedSOH < minInventory {
		qty := maxInventory - adjustedSOH
		if qty < 0 {
			qty = 0
		}
		decision.ProcurementQty = qty
		decision.Reason = fmt.Sprintf("Adjusted SOH %g < Min Inventory %g", adjustedSOH, minInventory)
	} else {
		decision.Reason = fmt.Sprintf("Adjusted SOH %g >= Min Inventory %g", adjustedSOH, minInventory)
	}

	return decision
}
