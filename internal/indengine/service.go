// Package indengine polls candles for the configured watchlist, computes
// indicator bundles and publishes them for the gateway.
package indengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cryptodash/internal/indicator"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
)

// CandleFetcher supplies candles and reports which source served them.
type CandleFetcher interface {
	CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error)
}

// Runner is a background loop started alongside the poller.
type Runner interface {
	Run(ctx context.Context) error
}

// Deps are the collaborators of a Service. Metrics, Health and Alerts may
// be nil.
type Deps struct {
	Candles   CandleFetcher
	Publisher model.BundlePublisher
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Alerts    Runner
}

// Service is the top-level orchestrator for the indicator engine.
type Service struct {
	cfg  Config
	deps Deps

	indMu sync.RWMutex
	ind   indicator.Config

	polls     atomic.Int64
	published atomic.Int64
	now       func() time.Time
}

// New creates a Service. cfg must already be valid.
func New(cfg Config, deps Deps) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if deps.Health != nil {
		deps.Health.SetWatchlist(cfg.Symbols, cfg.Intervals)
	}
	return &Service{cfg: cfg, deps: deps, ind: cfg.Indicators, now: time.Now}
}

// IndicatorConfig returns the active indicator parameters.
func (svc *Service) IndicatorConfig() indicator.Config {
	svc.indMu.RLock()
	defer svc.indMu.RUnlock()
	return svc.ind
}

// SetIndicatorConfig validates and swaps the indicator parameters used by
// subsequent polls.
func (svc *Service) SetIndicatorConfig(cfg indicator.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	svc.indMu.Lock()
	svc.ind = cfg
	svc.indMu.Unlock()
	log.Printf("[indengine] indicator config reloaded: sma=%v rsi=%d macd=%d/%d/%d window=%d",
		cfg.SMAPeriods, cfg.RSIPeriod, cfg.MACD.Fast, cfg.MACD.Slow, cfg.MACD.Signal, cfg.StatsWindow)
	return nil
}

// Run polls until ctx is cancelled. The alert evaluator, if any, runs in
// the same group.
func (svc *Service) Run(ctx context.Context) error {
	log.Printf("[indengine] starting: %d symbols x %d intervals every %s (concurrency=%d)",
		len(svc.cfg.Symbols), len(svc.cfg.Intervals), svc.cfg.PollInterval, svc.cfg.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.pollLoop(gctx) })
	if svc.deps.Alerts != nil {
		g.Go(func() error { return svc.deps.Alerts.Run(gctx) })
	}
	err := g.Wait()
	log.Printf("[indengine] stopped after %d polls, %d bundles published", svc.polls.Load(), svc.published.Load())
	return err
}

func (svc *Service) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(svc.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := svc.PollOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[indengine] poll: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce computes and publishes every symbol and interval once. Failed
// pairs are logged and counted; the returned error summarises them.
func (svc *Service) PollOnce(ctx context.Context) error {
	ind := svc.IndicatorConfig()
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(svc.cfg.Concurrency)
	for _, interval := range svc.cfg.Intervals {
		for _, symbol := range svc.cfg.Symbols {
			symbol, interval := symbol, interval
			g.Go(func() error {
				if err := svc.processOne(gctx, symbol, interval, ind); err != nil {
					failed.Add(1)
					if svc.deps.Metrics != nil {
						svc.deps.Metrics.PollErrors.Inc()
					}
					log.Printf("[indengine] %s %s: %v", symbol, interval, err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	svc.polls.Add(1)
	if svc.deps.Health != nil {
		svc.deps.Health.SetLastPoll(svc.now())
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d pairs failed", n, len(svc.cfg.Symbols)*len(svc.cfg.Intervals))
	}
	return nil
}

func (svc *Service) processOne(ctx context.Context, symbol, interval string, ind indicator.Config) error {
	candles, source, err := svc.deps.Candles.CandlesFrom(ctx, symbol, interval, svc.cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	start := time.Now()
	res := indicator.Compute(candles, ind)
	if svc.deps.Metrics != nil {
		svc.deps.Metrics.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	}

	update := model.IndicatorUpdate{
		Symbol:          symbol,
		Interval:        interval,
		Source:          source,
		ComputedAt:      svc.now().UnixMilli(),
		IndicatorResult: res,
	}
	if n := len(candles); n > 0 {
		last := candles[n-1]
		update.Candle = &last
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := svc.deps.Publisher.PublishBundle(ctx, symbol, interval, payload); err != nil {
		if svc.deps.Metrics != nil {
			svc.deps.Metrics.PublishErrors.Inc()
		}
		return fmt.Errorf("publish: %w", err)
	}
	if svc.deps.Metrics != nil {
		svc.deps.Metrics.BundlesPublished.Inc()
	}
	svc.published.Add(1)
	return nil
}
