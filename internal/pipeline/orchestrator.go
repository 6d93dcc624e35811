package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Orchestrator drives validation output through forecasting, policy, decision
// and optional ordering for every SKU of a batch.
type Orchestrator struct {
	forecaster Forecaster
	submitter  *Submitter
	cfg        OrchestratorConfig
}

// NewOrchestrator creates a new Orchestrator. submitter may be nil when the
// caller never asks for orders to be submitted.
func NewOrchestrator(forecaster Forecaster, submitter *Submitter, cfg OrchestratorConfig) *Orchestrator {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Orchestrator{
		forecaster: forecaster,
		submitter:  submitter,
		cfg:        cfg,
	}
}

// Run groups records by SKU and processes each SKU independently, up to
// WorkerCount at a time. A failure in one SKU never cancels the others. The
// summary keeps SKUs in order of first appearance whatever order they finish in.
func (o *Orchestrator) Run(ctx context.Context, records []domain.SalesRecord, opts RunOptions) (*domain.Summary, error) {
	if len(records) == 0 {
		return nil, ErrNoValidRows
	}
	if opts.HorizonDays < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHorizon, opts.HorizonDays)
	}
	if opts.SubmitOrders && o.submitter == nil {
		return nil, fmt.Errorf("order submission requested but no submitter configured")
	}

	groups := groupBySKU(records)
	log.Info().Int("skus", len(groups)).Int("workers", o.cfg.WorkerCount).Msg("processing unique SKUs")

	rows := make([]domain.SummaryRow, len(groups))

	var g errgroup.Group
	g.SetLimit(o.cfg.WorkerCount)
	for i, group := range groups {
		g.Go(func() error {
			rows[i] = o.processSKU(ctx, group, opts)
			return nil
		})
	}
	_ = g.Wait()

	summary := &domain.Summary{Rows: rows, Counts: countRows(rows)}

	log.Info().
		Int("processed", summary.Counts.SKUsProcessed).
		Int("skipped", summary.Counts.SKUsSkipped).
		Int("failed", summary.Counts.SKUsFailed).
		Int("orders_attempted", summary.Counts.OrdersAttempted).
		Int("orders_succeeded", summary.Counts.OrdersSucceeded).
		Int("orders_exhausted", summary.Counts.OrdersExhausted).
		Msg("replenishment run complete")

	return summary, nil
}

func (o *Orchestrator) processSKU(ctx context.Context, group skuGroup, opts RunOptions) domain.SummaryRow {
	row := domain.SummaryRow{SKU: group.SKU}
	logger := log.With().Str("sku", group.SKU).Logger()

	snapshot, ok := Snapshot(group.Records)
	if !ok {
		logger.Warn().Msg("no data for SKU, skipping")
		row.Status = domain.SKUSkipped
		row.Reason = "no valid rows"
		return row
	}
	row.SOH = snapshot.SOH
	row.OpenPO = snapshot.OpenPO
	row.OpenSO = snapshot.OpenSO
	row.AdjustedSOH = ComputeAdjustedSOH(snapshot.SOH, snapshot.OpenPO, snapshot.OpenSO)

	series := PrepareSeries(group.Records)
	result, err := o.forecast(ctx, series, opts.HorizonDays)
	row.HorizonDays = opts.HorizonDays
	if err != nil {
		logger.Error().Err(err).Msg("forecast failed, skipping SKU")
		row.Status = domain.SKUForecastFailed
		row.Error = err.Error()
		return row
	}

	forecast := result.Quantity
	minInv, maxInv := ComputeTargets(forecast, snapshot.MinDays, snapshot.MaxDays)
	decision := Decide(group.SKU, forecast, row.AdjustedSOH, minInv, maxInv)

	row.Status = domain.SKUProcessed
	row.Forecast = decision.Forecast
	row.MinInventory = decision.MinInventory
	row.MaxInventory = decision.MaxInventory
	row.ProcurementQty = decision.ProcurementQty
	row.Reason = decision.Reason

	logger.Info().
		Float64("forecast", forecast).
		Float64("soh", snapshot.SOH).
		Float64("open_po", snapshot.OpenPO).
		Float64("open_so", snapshot.OpenSO).
		Float64("min_days", snapshot.MinDays).
		Float64("max_days", snapshot.MaxDays).
		Float64("min_inventory", minInv).
		Float64("max_inventory", maxInv).
		Float64("adjusted_soh", row.AdjustedSOH).
		Float64("qty", decision.ProcurementQty).
		Str("reason", decision.Reason).
		Msg("procurement decision")

	if !opts.SubmitOrders || decision.ProcurementQty <= 0 {
		logger.Info().Msg("no procurement needed or order submission not requested")
		return row
	}

	attempt := o.submitter.Submit(ctx, domain.PurchaseOrder{
		SKU:       group.SKU,
		Quantity:  decision.ProcurementQty,
		Company:   snapshot.Company,
		Warehouse: snapshot.Warehouse,
	})
	row.Order = &attempt
	return row
}

func (o *Orchestrator) forecast(ctx context.Context, series domain.Series, horizon int) (result domain.ForecastResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("forecaster panicked: %v", r)
		}
	}()

	qty, err := o.forecaster.Forecast(ctx, series, horizon)
	if err != nil {
		return domain.ForecastResult{}, err
	}
	if qty < 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return domain.ForecastResult{}, fmt.Errorf("%w: %v", ErrNegativeForecast, qty)
	}
	log.Info().Str("sku", series.SKU).Int("horizon_days", horizon).Float64("forecast", qty).Msg("forecasted sales")
	return domain.ForecastResult{Quantity: qty, HorizonDays: horizon}, nil
}

func countRows(rows []domain.SummaryRow) domain.RunCounts {
	var c domain.RunCounts
	for _, r := range rows {
		switch r.Status {
		case domain.SKUProcessed:
			c.SKUsProcessed++
		case domain.SKUSkipped:
			c.SKUsSkipped++
		default:
			c.SKUsFailed++
		}
		if r.Order == nil {
			continue
		}
		c.OrdersAttempted++
		if r.Order.Succeeded() {
			c.OrdersSucceeded++
		} else {
			c.OrdersExhausted++
		}
	}
	return c
}
