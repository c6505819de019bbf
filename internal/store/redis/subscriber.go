package redis

import (
	"context"
	"log"

	goredis "github.com/go-redis/redis/v8"
)

// Subscriber delivers indicator bundles published by the indicator engine.
type Subscriber struct {
	client *goredis.Client
}

// NewSubscriber creates a Subscriber on client.
func NewSubscriber(client *goredis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Run pattern-subscribes to every indicator channel and calls fn for each
// message. Blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, fn func(channel string, payload []byte)) {
	pubsub := s.client.PSubscribe(ctx, IndicatorPattern)
	defer pubsub.Close()

	log.Printf("[redis-sub] subscribed to %s", IndicatorPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fn(msg.Channel, []byte(msg.Payload))
		}
	}
}
