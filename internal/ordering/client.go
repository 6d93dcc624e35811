package ordering

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Client posts purchase orders to the ordering API.
type Client struct {
	url        string
	httpClient *http.Client
}

// StatusError is returned when the ordering API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("order api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("order api returned %d: %s", e.StatusCode, e.Body)
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PlaceOrder implements pipeline.OrderPlacer. Retries reuse the order's
// idempotency key so the API can drop duplicates.
func (c *Client) PlaceOrder(ctx context.Context, token string, order domain.PurchaseOrder) error {
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode purchase order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build purchase order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if order.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", order.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("purchase order request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
