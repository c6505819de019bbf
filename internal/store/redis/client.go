package redis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a Redis client and pings the server.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// Key prefixes and channel names.
const (
	keyPrefix         = "cryptodash:"
	channelPrefix     = "pub:ind:"
	latestPrefix      = "ind:latest:"
	IndicatorPattern  = channelPrefix + "*"
	defaultLatestTTL  = 30 * time.Minute
	defaultCandleTTL  = 30 * time.Second
	defaultTickersTTL = 15 * time.Second
)

// IndicatorChannel is the pub/sub channel for one symbol and interval,
// e.g. "pub:ind:1h:BTCUSDT".
func IndicatorChannel(interval, symbol string) string {
	return channelPrefix + interval + ":" + symbol
}

// LatestKey is the key holding the most recent bundle for a channel.
func LatestKey(interval, symbol string) string {
	return latestPrefix + interval + ":" + symbol
}

// ParseIndicatorChannel splits a channel name back into interval and symbol.
func ParseIndicatorChannel(channel string) (interval, symbol string, ok bool) {
	rest, found := strings.CutPrefix(channel, channelPrefix)
	if !found {
		return "", "", false
	}
	interval, symbol, ok = strings.Cut(rest, ":")
	if !ok || interval == "" || symbol == "" {
		return "", "", false
	}
	return interval, symbol, true
}

func candlesKey(symbol, interval string, limit int) string {
	return fmt.Sprintf("%scandles:%s:%s:%d", keyPrefix, symbol, interval, limit)
}

func tickersKey() string { return keyPrefix + "tickers" }
