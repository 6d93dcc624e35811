package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
)

const forecastKeyPrefix = "replenish:forecast"

// ForecastCache stores forecast quantities keyed by the exact series and horizon.
type ForecastCache interface {
	Get(ctx context.Context, series domain.Series, horizonDays int) (float64, bool, error)
	Set(ctx context.Context, series domain.Series, horizonDays int, qty float64) error
	InvalidateAll(ctx context.Context) error
	Close() error
}

type redisForecastCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopForecastCache struct{}

// NewForecastCache returns a Redis-backed cache, or a no-op one when caching is disabled.
func NewForecastCache(cfg config.CacheConfig) (ForecastCache, error) {
	if !cfg.Enabled {
		return &noopForecastCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &redisForecastCache{client: client, ttl: ttl}, nil
}

func NewNoopForecastCache() ForecastCache {
	return &noopForecastCache{}
}

func (c *redisForecastCache) Get(ctx context.Context, series domain.Series, horizonDays int) (float64, bool, error) {
	key, err := buildForecastKey(series, horizonDays)
	if err != nil {
		return 0, false, err
	}

	raw, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}

	qty, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode forecast cache: %w", err)
	}
	return qty, true, nil
}

func (c *redisForecastCache) Set(ctx context.Context, series domain.Series, horizonDays int, qty float64) error {
	key, err := buildForecastKey(series, horizonDays)
	if err != nil {
		return err
	}

	value := strconv.FormatFloat(qty, 'g', -1, 64)
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisForecastCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, forecastKeyPrefix, scanBatchSize)
}

func (c *redisForecastCache) Close() error {
	return c.client.Close()
}

func (n *noopForecastCache) Get(ctx context.Context, series domain.Series, horizonDays int) (float64, bool, error) {
	return 0, false, nil
}

func (n *noopForecastCache) Set(ctx context.Context, series domain.Series, horizonDays int, qty float64) error {
	return nil
}

func (n *noopForecastCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func (n *noopForecastCache) Close() error {
	return nil
}

func buildForecastKey(series domain.Series, horizonDays int) (string, error) {
	payload, err := json.Marshal(series)
	if err != nil {
		return "", fmt.Errorf("encode forecast cache key: %w", err)
	}
	hash := sha1.Sum(append(payload, []byte("|h="+strconv.Itoa(horizonDays))...))
	return fmt.Sprintf("%s:%s", forecastKeyPrefix, hex.EncodeToString(hash[:])), nil
}

// CachedForecaster consults a ForecastCache before delegating to the wrapped
// forecaster. Cache failures are logged and never fail a forecast.
type CachedForecaster struct {
	next  pipeline.Forecaster
	cache ForecastCache
}

func NewCachedForecaster(next pipeline.Forecaster, cache ForecastCache) *CachedForecaster {
	if cache == nil {
		cache = &noopForecastCache{}
	}
	return &CachedForecaster{next: next, cache: cache}
}

func (f *CachedForecaster) Forecast(ctx context.Context, series domain.Series, horizonDays int) (float64, error) {
	qty, ok, err := f.cache.Get(ctx, series, horizonDays)
	if err != nil {
		log.Warn().Err(err).Str("sku", series.SKU).Msg("forecast cache lookup failed")
	}
	if ok {
		log.Debug().Str("sku", series.SKU).Msg("forecast cache hit")
		return qty, nil
	}

	qty, err = f.next.Forecast(ctx, series, horizonDays)
	if err != nil {
		return 0, err
	}

	if err := f.cache.Set(ctx, series, horizonDays, qty); err != nil {
		log.Warn().Err(err).Str("sku", series.SKU).Msg("forecast cache store failed")
	}
	return qty, nil
}
