package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

func sampleReport() *domain.RunReport {
	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return &domain.RunReport{
		RunID:       "6f1c1f8e-8a1e-4c0e-9a57-0d7d1f0c7a11",
		Source:      "sales.csv",
		HorizonDays: 7,
		OrdersSent:  true,
		Validation:  domain.ValidationCounts{Total: 4, Valid: 3, Malformed: 1},
		Summary: domain.Summary{
			Rows: []domain.SummaryRow{
				{SKU: "A1", Status: domain.SKUProcessed, Forecast: 100, AdjustedSOH: 60, MinInventory: 100, MaxInventory: 300, ProcurementQty: 240,
					Order: &domain.OrderAttempt{State: domain.OrderExhausted, Attempts: 3, ManualIntervention: true}},
				{SKU: "B2", Status: domain.SKUForecastFailed, SOH: 5, Error: "boom"},
			},
			Counts: domain.RunCounts{SKUsProcessed: 1, SKUsFailed: 1, OrdersAttempted: 1, OrdersExhausted: 1},
		},
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
	}
}

func TestToRunRecord(t *testing.T) {
	rec := toRunRecord(sampleReport())
	require.Equal(t, "sales.csv", rec.Source)
	require.Equal(t, 7, rec.HorizonDays)
	require.True(t, rec.OrdersSent)
	require.Equal(t, 1, rec.RowsMalformed)
	require.Equal(t, 1, rec.OrdersExhausted)
	require.Equal(t, time.Minute, rec.CompletedAt.Sub(rec.StartedAt))
}

func TestToDecisionRecords(t *testing.T) {
	recs := toDecisionRecords(sampleReport())
	require.Len(t, recs, 2)

	require.Equal(t, 1, recs[0].Position)
	require.Equal(t, "processed", recs[0].Status)
	require.InDelta(t, 240.0, recs[0].ProcurementQty, 1e-9)
	require.NotNil(t, recs[0].OrderState)
	require.Equal(t, "exhausted", *recs[0].OrderState)
	require.Equal(t, 3, recs[0].OrderAttempts)
	require.True(t, recs[0].ManualIntervention)

	require.Equal(t, 2, recs[1].Position)
	require.Equal(t, "forecast_failed", recs[1].Status)
	require.Nil(t, recs[1].OrderState)
	require.Equal(t, "boom", recs[1].Error)
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "autopo", SSLMode: "disable"})
	require.Equal(t, "host=db port=5432 user=u password=p dbname=autopo sslmode=disable", dsn)
}

func TestMigrationsEmbedded(t *testing.T) {
	body, err := migrationFS.ReadFile("migrations/001_replenishment.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS replenishment_runs")
	require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS replenishment_decisions")
}
