package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptodash/internal/breaker"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
)

// KV is the slice of Redis the cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrMiss when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ErrMiss reports a key that is not cached.
var ErrMiss = errors.New("redis: cache miss")

type clientKV struct{ c goredis.Cmdable }

// NewKV adapts a go-redis client to KV.
func NewKV(c goredis.Cmdable) KV { return clientKV{c: c} }

func (k clientKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := k.c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (k clientKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return k.c.Set(ctx, key, value, ttl).Err()
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	CandleTTL  time.Duration // default 30s
	TickersTTL time.Duration // default 15s
	Breaker    *breaker.CircuitBreaker
	Metrics    *metrics.Metrics
}

// Cache is a read-through JSON cache in front of a candle and ticker
// source. Redis failures are logged and bypassed; they never fail a read.
type Cache struct {
	kv      KV
	candles model.CandleSource
	tickers model.TickerSource
	cfg     CacheConfig
	log     *slog.Logger
}

// NewCache wraps candles and tickers (either may be nil) with kv.
func NewCache(kv KV, candles model.CandleSource, tickers model.TickerSource, cfg CacheConfig) *Cache {
	if cfg.CandleTTL <= 0 {
		cfg.CandleTTL = defaultCandleTTL
	}
	if cfg.TickersTTL <= 0 {
		cfg.TickersTTL = defaultTickersTTL
	}
	if cfg.Breaker == nil {
		cfg.Breaker = breaker.New("redis-cache", 5, 10*time.Second)
	}
	return &Cache{
		kv:      kv,
		candles: candles,
		tickers: tickers,
		cfg:     cfg,
		log:     slog.Default().With("component", "redis-cache"),
	}
}

// SourceCache is reported as the source of a cache hit.
const SourceCache = "cache"

// sourcedCandles and sourcedTickers are implemented by upstreams that
// report which source answered, such as a fallback chain.
type sourcedCandles interface {
	CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error)
}

type sourcedTickers interface {
	TickersFrom(ctx context.Context) ([]model.Ticker, string, error)
}

// Candles implements model.CandleSource.
func (c *Cache) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	candles, _, err := c.CandlesFrom(ctx, symbol, interval, limit)
	return candles, err
}

// CandlesFrom is Candles that also names the source: SourceCache on a hit,
// otherwise whatever the wrapped upstream reports ("upstream" if it
// reports nothing).
func (c *Cache) CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error) {
	key := candlesKey(symbol, interval, limit)
	var candles []model.Candle
	if c.load(ctx, "candles", key, &candles) {
		return candles, SourceCache, nil
	}

	source := "upstream"
	var err error
	if s, ok := c.candles.(sourcedCandles); ok {
		candles, source, err = s.CandlesFrom(ctx, symbol, interval, limit)
	} else {
		candles, err = c.candles.Candles(ctx, symbol, interval, limit)
	}
	if err != nil {
		return nil, "", err
	}
	c.store(ctx, key, candles, c.cfg.CandleTTL)
	return candles, source, nil
}

// Tickers implements model.TickerSource.
func (c *Cache) Tickers(ctx context.Context) ([]model.Ticker, error) {
	tickers, _, err := c.TickersFrom(ctx)
	return tickers, err
}

// TickersFrom is Tickers that also names the source, like CandlesFrom.
func (c *Cache) TickersFrom(ctx context.Context) ([]model.Ticker, string, error) {
	key := tickersKey()
	var tickers []model.Ticker
	if c.load(ctx, "tickers", key, &tickers) {
		return tickers, SourceCache, nil
	}

	source := "upstream"
	var err error
	if s, ok := c.tickers.(sourcedTickers); ok {
		tickers, source, err = s.TickersFrom(ctx)
	} else {
		tickers, err = c.tickers.Tickers(ctx)
	}
	if err != nil {
		return nil, "", err
	}
	c.store(ctx, key, tickers, c.cfg.TickersTTL)
	return tickers, source, nil
}

func (c *Cache) load(ctx context.Context, kind, key string, out any) bool {
	var raw []byte
	err := c.cfg.Breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		raw, err = c.kv.Get(ctx, key)
		if errors.Is(err, ErrMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, breaker.ErrCircuitOpen) {
			c.log.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if raw == nil || json.Unmarshal(raw, out) != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.CacheMisses.WithLabelValues(kind).Inc()
		}
		return false
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.CacheHits.WithLabelValues(kind).Inc()
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	err = c.cfg.Breaker.Execute(ctx, func(ctx context.Context) error {
		return c.kv.Set(ctx, key, raw, ttl)
	})
	if err != nil && !errors.Is(err, breaker.ErrCircuitOpen) {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}
