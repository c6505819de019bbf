package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Publisher writes indicator bundles to Redis: the payload is stored under
// the latest-snapshot key and published on the bundle's channel in one
// pipeline round trip.
type Publisher struct {
	client    goredis.Cmdable
	latestTTL time.Duration
}

// NewPublisher creates a Publisher. A non-positive latestTTL uses 30m.
func NewPublisher(client goredis.Cmdable, latestTTL time.Duration) *Publisher {
	if latestTTL <= 0 {
		latestTTL = defaultLatestTTL
	}
	return &Publisher{client: client, latestTTL: latestTTL}
}

// PublishBundle implements model.BundlePublisher.
func (p *Publisher) PublishBundle(ctx context.Context, symbol, interval string, payload []byte) error {
	pipe := p.client.Pipeline()
	pipe.Set(ctx, LatestKey(interval, symbol), payload, p.latestTTL)
	pipe.Publish(ctx, IndicatorChannel(interval, symbol), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s/%s: %w", symbol, interval, err)
	}
	return nil
}

// Latest returns the most recent bundle for symbol and interval, or
// ErrMiss when none is stored.
func (p *Publisher) Latest(ctx context.Context, symbol, interval string) ([]byte, error) {
	return NewKV(p.client).Get(ctx, LatestKey(interval, symbol))
}
