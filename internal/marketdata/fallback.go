package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptodash/internal/breaker"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
)

// Source is one named upstream in a fallback chain. Either side may be nil
// when the upstream cannot serve that kind of data.
type Source struct {
	Name    string
	Candles model.CandleSource
	Tickers model.TickerSource
}

// ClientError is implemented by upstream errors that can report whether the
// request itself was rejected (unknown symbol, bad parameter). Such errors
// say nothing about the upstream's health.
type ClientError interface {
	ClientError() bool
}

// IsUpstreamFailure reports whether err should count against a source's
// breaker.
func IsUpstreamFailure(err error) bool {
	var ce ClientError
	if errors.As(err, &ce) && ce.ClientError() {
		return false
	}
	return true
}

type guardedSource struct {
	Source
	cb *breaker.CircuitBreaker
}

// Fallback tries each source in order and returns the first success.
// Every source sits behind its own circuit breaker so a dead upstream is
// skipped without waiting for its timeout.
type Fallback struct {
	sources []guardedSource
	prom    *metrics.Metrics
	log     *slog.Logger
}

// FallbackConfig tunes the per-source breakers.
type FallbackConfig struct {
	MaxFailures  int           // consecutive failures before a source is skipped (default 3)
	ResetTimeout time.Duration // how long a tripped source is skipped (default 30s)
	Metrics      *metrics.Metrics
}

// NewFallback builds a chain over sources, tried in the given order.
func NewFallback(cfg FallbackConfig, sources ...Source) *Fallback {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	f := &Fallback{
		prom: cfg.Metrics,
		log:  slog.Default().With("component", "marketdata"),
	}
	for _, s := range sources {
		cb := breaker.New(s.Name, cfg.MaxFailures, cfg.ResetTimeout)
		cb.IsFailure = IsUpstreamFailure
		if f.prom != nil {
			prom := f.prom
			prom.CircuitBreakerState.WithLabelValues(s.Name).Set(float64(breaker.StateClosed))
			cb.OnStateChange = func(name string, _, to breaker.State) {
				prom.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				if to == breaker.StateOpen {
					prom.CircuitBreakerTrips.WithLabelValues(name).Inc()
				}
			}
		}
		f.sources = append(f.sources, guardedSource{Source: s, cb: cb})
	}
	return f
}

// Candles implements model.CandleSource.
func (f *Fallback) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	candles, _, err := f.CandlesFrom(ctx, symbol, interval, limit)
	return candles, err
}

// CandlesFrom is Candles that also reports which source served the data.
func (f *Fallback) CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error) {
	var errs []error
	for _, s := range f.sources {
		if s.Candles == nil {
			continue
		}
		var candles []model.Candle
		err := f.call(ctx, s, "candles", func(ctx context.Context) error {
			var err error
			candles, err = s.Candles.Candles(ctx, symbol, interval, limit)
			return err
		})
		if err == nil {
			f.served(s.Name)
			return candles, s.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", f.exhausted("candles", errs)
}

// Tickers implements model.TickerSource.
func (f *Fallback) Tickers(ctx context.Context) ([]model.Ticker, error) {
	tickers, _, err := f.TickersFrom(ctx)
	return tickers, err
}

// TickersFrom is Tickers that also reports which source served the data.
// A source that answers with no tickers counts as a failure.
func (f *Fallback) TickersFrom(ctx context.Context) ([]model.Ticker, string, error) {
	var errs []error
	for _, s := range f.sources {
		if s.Tickers == nil {
			continue
		}
		var tickers []model.Ticker
		err := f.call(ctx, s, "tickers", func(ctx context.Context) error {
			var err error
			tickers, err = s.Tickers.Tickers(ctx)
			if err == nil && len(tickers) == 0 {
				err = ErrEmpty
			}
			return err
		})
		if err == nil {
			f.served(s.Name)
			return tickers, s.Name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, "", f.exhausted("tickers", errs)
}

// BreakerState exposes a source's breaker state for health reporting.
func (f *Fallback) BreakerState(name string) (breaker.State, bool) {
	for _, s := range f.sources {
		if s.Name == name {
			return s.cb.CurrentState(), true
		}
	}
	return breaker.StateClosed, false
}

func (f *Fallback) call(ctx context.Context, s guardedSource, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.cb.Execute(ctx, fn)
	if f.prom != nil && !errors.Is(err, breaker.ErrCircuitOpen) {
		f.prom.UpstreamFetchDur.WithLabelValues(s.Name, op).Observe(time.Since(start).Seconds())
		if err != nil {
			f.prom.UpstreamErrors.WithLabelValues(s.Name, op).Inc()
		}
	}
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		f.log.Debug("source skipped", "source", s.Name, "op", op)
	case err != nil:
		f.log.Warn("source failed, trying next", "source", s.Name, "op", op, "error", err)
	}
	return err
}

func (f *Fallback) served(name string) {
	if f.prom != nil {
		f.prom.FallbackServed.WithLabelValues(name).Inc()
	}
}

func (f *Fallback) exhausted(op string, errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("marketdata: %s: no source configured", op)
	}
	return fmt.Errorf("marketdata: %s: all sources failed: %w", op, errors.Join(errs...))
}
