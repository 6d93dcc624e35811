package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// RunRepository writes the audit trail of replenishment runs. Nothing reads it
// back during a run.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

type runRecord struct {
	ID              string    `db:"id"`
	Source          string    `db:"source"`
	HorizonDays     int       `db:"horizon_days"`
	OrdersSent      bool      `db:"orders_sent"`
	RowsTotal       int       `db:"rows_total"`
	RowsValid       int       `db:"rows_valid"`
	RowsMalformed   int       `db:"rows_malformed"`
	SKUsProcessed   int       `db:"skus_processed"`
	SKUsSkipped     int       `db:"skus_skipped"`
	SKUsFailed      int       `db:"skus_failed"`
	OrdersAttempted int       `db:"orders_attempted"`
	OrdersSucceeded int       `db:"orders_succeeded"`
	OrdersExhausted int       `db:"orders_exhausted"`
	StartedAt       time.Time `db:"started_at"`
	CompletedAt     time.Time `db:"completed_at"`
}

type decisionRecord struct {
	RunID              string  `db:"run_id"`
	Position           int     `db:"position"`
	SKU                string  `db:"sku"`
	Status             string  `db:"status"`
	Forecast           float64 `db:"forecast"`
	SOH                float64 `db:"soh"`
	OpenPO             float64 `db:"open_po"`
	OpenSO             float64 `db:"open_so"`
	AdjustedSOH        float64 `db:"adjusted_soh"`
	MinInventory       float64 `db:"min_inventory"`
	MaxInventory       float64 `db:"max_inventory"`
	ProcurementQty     float64 `db:"procurement_qty"`
	Reason             string  `db:"reason"`
	Error              string  `db:"error"`
	OrderState         *string `db:"order_state"`
	OrderAttempts      int     `db:"order_attempts"`
	ManualIntervention bool    `db:"manual_intervention"`
}

const insertRunQuery = `
	INSERT INTO replenishment_runs (
		id, source, horizon_days, orders_sent,
		rows_total, rows_valid, rows_malformed,
		skus_processed, skus_skipped, skus_failed,
		orders_attempted, orders_succeeded, orders_exhausted,
		started_at, completed_at
	) VALUES (
		:id, :source, :horizon_days, :orders_sent,
		:rows_total, :rows_valid, :rows_malformed,
		:skus_processed, :skus_skipped, :skus_failed,
		:orders_attempted, :orders_succeeded, :orders_exhausted,
		:started_at, :completed_at
	)`

const insertDecisionQuery = `
	INSERT INTO replenishment_decisions (
		run_id, position, sku, status,
		forecast, soh, open_po, open_so, adjusted_soh,
		min_inventory, max_inventory, procurement_qty,
		reason, error, order_state, order_attempts, manual_intervention
	) VALUES (
		:run_id, :position, :sku, :status,
		:forecast, :soh, :open_po, :open_so, :adjusted_soh,
		:min_inventory, :max_inventory, :procurement_qty,
		:reason, :error, :order_state, :order_attempts, :manual_intervention
	)`

// SaveRun inserts the run and its per-SKU decisions in one transaction.
func (r *RunRepository) SaveRun(ctx context.Context, report *domain.RunReport) error {
	run := toRunRecord(report)
	decisions := toDecisionRecords(report)

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertRunQuery, run); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
		}

		stmt, err := tx.PrepareNamedContext(ctx, insertDecisionQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare decision insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range decisions {
			if _, err := stmt.ExecContext(ctx, d); err != nil {
				return fmt.Errorf("failed to insert decision for sku %s: %w", d.SKU, err)
			}
		}
		return nil
	})
}

func toRunRecord(report *domain.RunReport) runRecord {
	c := report.Summary.Counts
	return runRecord{
		ID:              report.RunID,
		Source:          report.Source,
		HorizonDays:     report.HorizonDays,
		OrdersSent:      report.OrdersSent,
		RowsTotal:       report.Validation.Total,
		RowsValid:       report.Validation.Valid,
		RowsMalformed:   report.Validation.Malformed,
		SKUsProcessed:   c.SKUsProcessed,
		SKUsSkipped:     c.SKUsSkipped,
		SKUsFailed:      c.SKUsFailed,
		OrdersAttempted: c.OrdersAttempted,
		OrdersSucceeded: c.OrdersSucceeded,
		OrdersExhausted: c.OrdersExhausted,
		StartedAt:       report.StartedAt,
		CompletedAt:     report.CompletedAt,
	}
}

func toDecisionRecords(report *domain.RunReport) []decisionRecord {
	out := make([]decisionRecord, 0, len(report.Summary.Rows))
	for i, row := range report.Summary.Rows {
		rec := decisionRecord{
			RunID:          report.RunID,
			Position:       i + 1,
			SKU:            row.SKU,
			Status:         string(row.Status),
			Forecast:       row.Forecast,
			SOH:            row.SOH,
			OpenPO:         row.OpenPO,
			OpenSO:         row.OpenSO,
			AdjustedSOH:    row.AdjustedSOH,
			MinInventory:   row.MinInventory,
			MaxInventory:   row.MaxInventory,
			ProcurementQty: row.ProcurementQty,
			Reason:         row.Reason,
			Error:          row.Error,
		}
		if row.Order != nil {
			state := string(row.Order.State)
			rec.OrderState = &state
			rec.OrderAttempts = row.Order.Attempts
			rec.ManualIntervention = row.Order.ManualIntervention
		}
		out = append(out, rec)
	}
	return out
}
