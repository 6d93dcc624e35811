package forecast

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// ErrEmptySeries is returned when a SKU has no history to forecast from.
var ErrEmptySeries = errors.New("series has no observations")

const defaultWindowDays = 28

// MovingAverage forecasts demand as the mean daily sales of the most recent
// window, scaled to the horizon. Days flagged as promotion or festival are left
// out of the mean since future days are assumed to carry neither.
type MovingAverage struct {
	WindowDays int
}

// NewMovingAverage creates a MovingAverage over the last windowDays points.
func NewMovingAverage(windowDays int) *MovingAverage {
	if windowDays < 1 {
		windowDays = defaultWindowDays
	}
	return &MovingAverage{WindowDays: windowDays}
}

// Forecast implements pipeline.Forecaster.
func (m *MovingAverage) Forecast(ctx context.Context, series domain.Series, horizonDays int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(series.Points) == 0 {
		return 0, fmt.Errorf("sku %s: %w", series.SKU, ErrEmptySeries)
	}
	if horizonDays < 1 {
		return 0, fmt.Errorf("horizon must be at least 1 day, got %d", horizonDays)
	}

	window := series.Points
	if len(window) > m.WindowDays {
		window = window[len(window)-m.WindowDays:]
	}

	var baseSum, allSum float64
	var baseDays int
	for _, p := range window {
		allSum += p.Demand
		if p.Promotion == 0 && p.Festival == 0 {
			baseSum += p.Demand
			baseDays++
		}
	}

	daily := allSum / float64(len(window))
	if baseDays > 0 {
		daily = baseSum / float64(baseDays)
	}
	if daily < 0 {
		daily = 0
	}
	return daily * float64(horizonDays), nil
}
