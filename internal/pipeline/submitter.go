package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// LinearBackoff waits Base * attempt.
type LinearBackoff struct {
	Base time.Duration
}

// MaxBackoffDelay caps every computed backoff wait.
const MaxBackoffDelay = time.Hour

func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Base > MaxBackoffDelay/time.Duration(attempt) {
		return MaxBackoffDelay
	}
	return b.Base * time.Duration(attempt)
}

// ExponentialBackoff waits Base * 2^(attempt-1).
type ExponentialBackoff struct {
	Base time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 1; i < attempt; i++ {
		if d > MaxBackoffDelay/2 {
			return MaxBackoffDelay
		}
		d *= 2
	}
	return d
}

// NewBackoff maps a strategy name onto a Backoff. Unknown names fall back to linear.
func NewBackoff(strategy string, base time.Duration) Backoff {
	if strategy == "exponential" {
		return ExponentialBackoff{Base: base}
	}
	return LinearBackoff{Base: base}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Submitter places purchase orders with bounded, strictly sequential retries.
type Submitter struct {
	placer OrderPlacer
	tokens TokenProvider
	config SubmitterConfig
	sleep  SleepFunc
}

// NewSubmitter creates a Submitter. A MaxAttempts below 1 becomes 3 and a nil
// Backoff becomes the default linear backoff.
func NewSubmitter(placer OrderPlacer, tokens TokenProvider, cfg SubmitterConfig) *Submitter {
	defaults := DefaultSubmitterConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = defaults.Backoff
	}
	return &Submitter{
		placer: placer,
		tokens: tokens,
		config: cfg,
		sleep:  sleepContext,
	}
}

// WithSleep swaps the wait function, letting tests run retries without wall-clock delays.
func (s *Submitter) WithSleep(fn SleepFunc) *Submitter {
	s.sleep = fn
	return s
}

// MaxAttempts returns the configured attempt bound.
func (s *Submitter) MaxAttempts() int {
	return s.config.MaxAttempts
}

// Submit runs Pending -> Attempting(n) -> Succeeded | Exhausted for one order.
// The token is acquired once per sequence. An exhausted order is flagged for
// manual intervention.
func (s *Submitter) Submit(ctx context.Context, order domain.PurchaseOrder) domain.OrderAttempt {
	if order.IdempotencyKey == "" {
		order.IdempotencyKey = uuid.NewString()
	}

	attempt := domain.OrderAttempt{
		SKU:       order.SKU,
		Quantity:  order.Quantity,
		Company:   order.Company,
		Warehouse: order.Warehouse,
		State:     domain.OrderPending,
	}
	logger := log.With().Str("sku", order.SKU).Float64("qty", order.Quantity).Logger()

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return s.exhaust(attempt, fmt.Errorf("access token: %w", err))
	}

	var lastErr error
	for n := 1; n <= s.config.MaxAttempts; n++ {
		attempt.State = domain.OrderAttempting
		attempt.Attempts = n

		logger.Info().
			Int("attempt", n).
			Str("company", order.Company).
			Str("warehouse", order.Warehouse).
			Msg("placing purchase order")

		lastErr = s.placer.PlaceOrder(ctx, token, order)
		if lastErr == nil {
			attempt.State = domain.OrderSucceeded
			logger.Info().Int("attempt", n).Msg("purchase order placed")
			return attempt
		}

		logger.Error().Err(lastErr).Int("attempt", n).Msg("purchase order attempt failed")

		if n == s.config.MaxAttempts {
			break
		}
		if err := s.sleep(ctx, s.config.Backoff.Delay(n)); err != nil {
			lastErr = fmt.Errorf("retry aborted: %w", err)
			break
		}
	}

	return s.exhaust(attempt, lastErr)
}

func (s *Submitter) exhaust(attempt domain.OrderAttempt, err error) domain.OrderAttempt {
	attempt.State = domain.OrderExhausted
	attempt.ManualIntervention = true
	if err != nil {
		attempt.Error = err.Error()
	}
	log.Error().
		Str("sku", attempt.SKU).
		Int("attempts", attempt.Attempts).
		Err(err).
		Msg("all order attempts failed, manual intervention required")
	return attempt
}
