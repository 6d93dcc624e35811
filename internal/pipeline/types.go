package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

var (
	// ErrNoValidRows aborts a run before any forecasting or ordering happens.
	ErrNoValidRows = errors.New("no valid rows to process")
	// ErrInvalidHorizon is returned when the forecast horizon is below one day.
	ErrInvalidHorizon = errors.New("forecast horizon must be at least 1 day")
	// ErrNegativeForecast marks a forecaster returning a negative or non-finite quantity.
	ErrNegativeForecast = errors.New("forecaster returned a negative or non-finite quantity")
)

// Forecaster predicts aggregate demand for a SKU over the next horizonDays.
// Future regressor values are assumed to be 0 (no promotion, no festival).
type Forecaster interface {
	Forecast(ctx context.Context, series domain.Series, horizonDays int) (float64, error)
}

// ForecasterFunc adapts a function to the Forecaster interface.
type ForecasterFunc func(ctx context.Context, series domain.Series, horizonDays int) (float64, error)

func (f ForecasterFunc) Forecast(ctx context.Context, series domain.Series, horizonDays int) (float64, error) {
	return f(ctx, series, horizonDays)
}

// OrderPlacer is the external purchase-order endpoint.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, token string, order domain.PurchaseOrder) error
}

// TokenProvider acquires the access token used for one order attempt sequence.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// RawRow is one CSV data row keyed by header name. Row numbers start at 1.
// Err is set when the line could not be parsed; Raw then holds its text.
type RawRow struct {
	Row    int
	Fields map[string]string
	Raw    string
	Err    error
}

// RunOptions controls a single orchestrator run.
type RunOptions struct {
	HorizonDays  int
	SubmitOrders bool
}

// OrchestratorConfig holds construction-time settings for the batch orchestrator.
type OrchestratorConfig struct {
	WorkerCount int // Number of SKUs processed concurrently
}

// DefaultOrchestratorConfig processes SKUs sequentially.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{WorkerCount: 1}
}

// SubmitterConfig holds retry settings for the order submitter.
type SubmitterConfig struct {
	MaxAttempts int
	Backoff     Backoff
}

// DefaultSubmitterConfig returns 3 attempts with a 5s linear backoff.
func DefaultSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		MaxAttempts: 3,
		Backoff:     LinearBackoff{Base: 5 * time.Second},
	}
}
