package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Remote calls a forecasting sidecar over HTTP. The sidecar receives the full
// series with its regressors and returns the aggregate demand for the horizon.
type Remote struct {
	url    string
	client *http.Client
}

type remoteRequest struct {
	SKU         string               `json:"sku"`
	HorizonDays int                  `json:"horizon_days"`
	Points      []domain.SeriesPoint `json:"points"`
}

type remoteResponse struct {
	Forecast float64 `json:"forecast"`
	Error    string  `json:"error,omitempty"`
}

// NewRemote creates a Remote forecaster posting to url.
func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// Forecast implements pipeline.Forecaster.
func (r *Remote) Forecast(ctx context.Context, series domain.Series, horizonDays int) (float64, error) {
	body, err := json.Marshal(remoteRequest{
		SKU:         series.SKU,
		HorizonDays: horizonDays,
		Points:      series.Points,
	})
	if err != nil {
		return 0, fmt.Errorf("encode forecast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build forecast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read forecast response: %w", err)
	}

	var out remoteResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("forecast service returned %d", resp.StatusCode)
		}
		return 0, fmt.Errorf("decode forecast response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return 0, fmt.Errorf("forecast service returned %d: %s", resp.StatusCode, out.Error)
		}
		return 0, fmt.Errorf("forecast service returned %d", resp.StatusCode)
	}
	return out.Forecast, nil
}
