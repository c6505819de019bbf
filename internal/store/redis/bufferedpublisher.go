package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"cryptodash/internal/breaker"
	"cryptodash/internal/model"
)

type pendingBundle struct {
	symbol   string
	interval string
	payload  []byte
}

// BufferedPublisher wraps a BundlePublisher with a circuit breaker.
// While the circuit is open, bundles are held locally, one per channel since
// only the newest bundle matters, and flushed when the circuit closes.
type BufferedPublisher struct {
	pub model.BundlePublisher
	cb  *breaker.CircuitBreaker
	ctx context.Context

	mu      sync.Mutex
	pending map[string]pendingBundle // keyed by channel
	order   []string

	// Callbacks
	OnBuffer func()          // called when a bundle is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered bundles
}

// NewBufferedPublisher creates a BufferedPublisher. ctx bounds flushes
// triggered by the breaker closing.
func NewBufferedPublisher(ctx context.Context, pub model.BundlePublisher, cb *breaker.CircuitBreaker) *BufferedPublisher {
	bp := &BufferedPublisher{
		pub:     pub,
		cb:      cb,
		ctx:     ctx,
		pending: make(map[string]pendingBundle),
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(name string, from, to breaker.State) {
		if prevCallback != nil {
			prevCallback(name, from, to)
		}
		if to == breaker.StateClosed {
			go bp.flush()
		}
	}

	return bp
}

// PublishBundle implements model.BundlePublisher. An open circuit buffers
// the bundle and reports success; other failures are returned.
func (bp *BufferedPublisher) PublishBundle(ctx context.Context, symbol, interval string, payload []byte) error {
	err := bp.cb.Execute(ctx, func(ctx context.Context) error {
		return bp.pub.PublishBundle(ctx, symbol, interval, payload)
	})
	if errors.Is(err, breaker.ErrCircuitOpen) {
		bp.buffer(symbol, interval, payload)
		return nil
	}
	return err
}

func (bp *BufferedPublisher) buffer(symbol, interval string, payload []byte) {
	ch := IndicatorChannel(interval, symbol)

	bp.mu.Lock()
	if _, seen := bp.pending[ch]; !seen {
		bp.order = append(bp.order, ch)
	}
	bp.pending[ch] = pendingBundle{symbol: symbol, interval: interval, payload: payload}
	bp.mu.Unlock()

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays buffered bundles through the underlying publisher.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.pending) == 0 {
		bp.mu.Unlock()
		return
	}
	pending, order := bp.pending, bp.order
	bp.pending = make(map[string]pendingBundle)
	bp.order = nil
	bp.mu.Unlock()

	flushed := 0
	for _, ch := range order {
		b := pending[ch]
		if err := bp.pub.PublishBundle(bp.ctx, b.symbol, b.interval, b.payload); err != nil {
			log.Printf("[buffered-publisher] flush %s: %v", ch, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-publisher] flushed %d buffered bundles", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of channels with a bundle waiting.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.pending)
}
