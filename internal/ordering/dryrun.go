package ordering

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// DryRun logs the purchase order it would have sent and reports success.
type DryRun struct {
	Target string
}

func (d DryRun) PlaceOrder(ctx context.Context, token string, order domain.PurchaseOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().
		Str("target", d.Target).
		Str("sku", order.SKU).
		Float64("qty", order.Quantity).
		Str("company", order.Company).
		Str("warehouse", order.Warehouse).
		Str("idempotency_key", order.IdempotencyKey).
		Msg("dry run: purchase order not sent")
	return nil
}
