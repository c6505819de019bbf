// Package bootstrap builds the collaborators shared by the cryptodash
// binaries from the process config.
package bootstrap

import (
	"context"
	"log"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/afero"

	"cryptodash/config"
	"cryptodash/internal/indicator"
	"cryptodash/internal/logger"
	"cryptodash/internal/marketdata"
	"cryptodash/internal/marketdata/binance"
	"cryptodash/internal/marketdata/coingecko"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
	redisstore "cryptodash/internal/store/redis"
)

// Logger initialises the process logger for service.
func Logger(service string, cfg *config.Config) *slog.Logger {
	return logger.Init(service, logger.ParseLevel(cfg.LogLevel), cfg.LogFormat)
}

// Binance returns the unsigned mainnet client.
func Binance(cfg *config.Config) *binance.Client {
	return binance.New(binance.Config{
		BaseURL: cfg.BinanceBaseURL,
		RPS:     cfg.BinanceRPS,
		Timeout: cfg.UpstreamTimeout,
	})
}

// Upstreams chains Binance and CoinGecko behind per-source breakers.
func Upstreams(cfg *config.Config, bn *binance.Client, m *metrics.Metrics) *marketdata.Fallback {
	cg := coingecko.New(coingecko.Config{BaseURL: cfg.CoinGeckoBaseURL, Timeout: cfg.UpstreamTimeout})
	return marketdata.NewFallback(marketdata.FallbackConfig{Metrics: m},
		marketdata.Source{Name: "binance", Candles: bn, Tickers: bn},
		marketdata.Source{Name: "coingecko", Candles: cg, Tickers: cg},
	)
}

// Redis connects to Redis. A failed connection is logged and returns nil;
// callers run without cache and pub/sub.
func Redis(ctx context.Context, cfg *config.Config) *goredis.Client {
	rdb, err := redisstore.Connect(ctx, redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		log.Printf("[bootstrap] WARNING: redis unavailable, continuing without it: %v", err)
		return nil
	}
	return rdb
}

// Market is a candle and ticker source that names who answered.
type Market interface {
	model.CandleSource
	model.TickerSource
	CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error)
	TickersFrom(ctx context.Context) ([]model.Ticker, string, error)
}

// MarketData puts the Redis cache in front of the upstream chain. Without
// Redis the chain is returned as is.
func MarketData(cfg *config.Config, rdb *goredis.Client, upstream *marketdata.Fallback, m *metrics.Metrics) Market {
	if rdb == nil {
		return upstream
	}
	return redisstore.NewCache(redisstore.NewKV(rdb), upstream, upstream, redisstore.CacheConfig{
		CandleTTL:  cfg.CandleCacheTTL,
		TickersTTL: cfg.TickerCacheTTL,
		Metrics:    m,
	})
}

// IndicatorConfig loads INDICATOR_CONFIG_FILE when set, else the defaults.
func IndicatorConfig(cfg *config.Config) (indicator.Config, error) {
	if cfg.IndicatorConfigFile == "" {
		return indicator.DefaultConfig(), nil
	}
	return indicator.LoadConfig(afero.NewOsFs(), cfg.IndicatorConfigFile)
}
