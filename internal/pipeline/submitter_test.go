package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) AccessToken(context.Context) (string, error) {
	return "", errors.New("token endpoint unavailable")
}

// flakyPlacer fails the first failures calls and succeeds afterwards.
type flakyPlacer struct {
	mu       sync.Mutex
	failures int
	calls    int
	tokens   []string
	orders   []domain.PurchaseOrder
}

func (p *flakyPlacer) PlaceOrder(_ context.Context, token string, order domain.PurchaseOrder) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.tokens = append(p.tokens, token)
	p.orders = append(p.orders, order)
	if p.calls <= p.failures {
		return errors.New("503 service unavailable")
	}
	return nil
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func newTestSubmitter(placer OrderPlacer, tokens TokenProvider, maxAttempts int, sleeps *recordedSleeps) *Submitter {
	return NewSubmitter(placer, tokens, SubmitterConfig{
		MaxAttempts: maxAttempts,
		Backoff:     LinearBackoff{Base: 5 * time.Second},
	}).WithSleep(sleeps.sleep)
}

var testOrder = domain.PurchaseOrder{SKU: "A1", Quantity: 240, Company: "Acme", Warehouse: "WH1"}

func TestSubmitSucceedsFirstTry(t *testing.T) {
	placer := &flakyPlacer{}
	sleeps := &recordedSleeps{}
	attempt := newTestSubmitter(placer, staticToken("tok"), 3, sleeps).Submit(context.Background(), testOrder)

	require.Equal(t, domain.OrderSucceeded, attempt.State)
	require.True(t, attempt.Succeeded())
	require.Equal(t, 1, attempt.Attempts)
	require.False(t, attempt.ManualIntervention)
	require.Empty(t, sleeps.delays)
	require.Equal(t, []string{"tok"}, placer.tokens)
}

func TestSubmitSucceedsAfterKFailures(t *testing.T) {
	for k := 0; k < 3; k++ {
		placer := &flakyPlacer{failures: k}
		sleeps := &recordedSleeps{}
		attempt := newTestSubmitter(placer, staticToken("tok"), 3, sleeps).Submit(context.Background(), testOrder)

		require.Equal(t, domain.OrderSucceeded, attempt.State, "k=%d", k)
		require.Equal(t, k+1, attempt.Attempts)
		require.Equal(t, k+1, placer.calls)
		require.Len(t, sleeps.delays, k)
	}
}

func TestSubmitExhaustsAfterMaxAttempts(t *testing.T) {
	placer := &flakyPlacer{failures: 100}
	sleeps := &recordedSleeps{}
	attempt := newTestSubmitter(placer, staticToken("tok"), 4, sleeps).Submit(context.Background(), testOrder)

	require.Equal(t, domain.OrderExhausted, attempt.State)
	require.False(t, attempt.Succeeded())
	require.True(t, attempt.ManualIntervention)
	require.Equal(t, 4, attempt.Attempts)
	require.Equal(t, 4, placer.calls)
	require.Contains(t, attempt.Error, "503")
	// linear backoff between attempts, none after the last one
	require.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}, sleeps.delays)
}

func TestSubmitReusesTokenAndIdempotencyKey(t *testing.T) {
	placer := &flakyPlacer{failures: 2}
	sleeps := &recordedSleeps{}
	newTestSubmitter(placer, staticToken("tok"), 3, sleeps).Submit(context.Background(), testOrder)

	require.Len(t, placer.orders, 3)
	key := placer.orders[0].IdempotencyKey
	require.NotEmpty(t, key)
	for _, o := range placer.orders {
		require.Equal(t, key, o.IdempotencyKey)
	}
	require.Equal(t, []string{"tok", "tok", "tok"}, placer.tokens)
}

func TestSubmitTokenFailureRequiresManualIntervention(t *testing.T) {
	placer := &flakyPlacer{}
	attempt := newTestSubmitter(placer, failingToken{}, 3, &recordedSleeps{}).Submit(context.Background(), testOrder)

	require.Equal(t, domain.OrderExhausted, attempt.State)
	require.True(t, attempt.ManualIntervention)
	require.Zero(t, attempt.Attempts)
	require.Zero(t, placer.calls)
	require.Contains(t, attempt.Error, "access token")
}

func TestSubmitStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	placer := &flakyPlacer{failures: 100}
	s := NewSubmitter(placer, staticToken("tok"), SubmitterConfig{MaxAttempts: 3, Backoff: LinearBackoff{Base: time.Hour}})
	cancel()

	attempt := s.Submit(ctx, testOrder)
	require.Equal(t, domain.OrderExhausted, attempt.State)
	require.Equal(t, 1, attempt.Attempts)
	require.Contains(t, attempt.Error, "retry aborted")
}

func TestBackoffStrategies(t *testing.T) {
	linear := NewBackoff("linear", time.Second)
	require.Equal(t, time.Second, linear.Delay(1))
	require.Equal(t, 3*time.Second, linear.Delay(3))

	exp := NewBackoff("exponential", time.Second)
	require.Equal(t, time.Second, exp.Delay(1))
	require.Equal(t, 2*time.Second, exp.Delay(2))
	require.Equal(t, 4*time.Second, exp.Delay(3))

	require.IsType(t, LinearBackoff{}, NewBackoff("", time.Second))
}

func TestBackoffIsCapped(t *testing.T) {
	exp := ExponentialBackoff{Base: time.Second}
	require.Equal(t, 2048*time.Second, exp.Delay(12))
	require.Equal(t, MaxBackoffDelay, exp.Delay(13))
	require.Equal(t, MaxBackoffDelay, exp.Delay(64))
	require.Equal(t, MaxBackoffDelay, exp.Delay(1000))

	linear := LinearBackoff{Base: 5 * time.Second}
	require.Equal(t, 3600*time.Second, linear.Delay(720))
	require.Equal(t, MaxBackoffDelay, linear.Delay(721))
	require.Equal(t, MaxBackoffDelay, linear.Delay(1<<40))
}

func TestNewSubmitterDefaults(t *testing.T) {
	s := NewSubmitter(&flakyPlacer{}, staticToken("tok"), SubmitterConfig{})
	require.Equal(t, 3, s.MaxAttempts())
	require.Equal(t, LinearBackoff{Base: 5 * time.Second}, s.config.Backoff)
}
