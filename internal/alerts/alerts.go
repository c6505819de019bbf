// Package alerts evaluates stored price alerts against live tickers and
// notifies when one fires.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
	"cryptodash/internal/notification"
)

// Evaluate reports whether price satisfies the alert's condition.
// Unknown conditions never fire.
func Evaluate(a model.PriceAlert, price float64) bool {
	switch strings.ToLower(a.Condition) {
	case model.ConditionAbove:
		return price >= a.TargetPrice
	case model.ConditionBelow:
		return price <= a.TargetPrice
	}
	return false
}

// ValidCondition reports whether c is a supported alert condition.
func ValidCondition(c string) bool {
	c = strings.ToLower(c)
	return c == model.ConditionAbove || c == model.ConditionBelow
}

// Evaluator periodically checks active alerts.
type Evaluator struct {
	store    model.AlertStore
	tickers  model.TickerSource
	notifier notification.Notifier
	metrics  *metrics.Metrics
	interval time.Duration
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator. m may be nil.
func NewEvaluator(store model.AlertStore, tickers model.TickerSource, n notification.Notifier, m *metrics.Metrics, interval time.Duration) *Evaluator {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Evaluator{
		store:    store,
		tickers:  tickers,
		notifier: n,
		metrics:  m,
		interval: interval,
		logger:   slog.Default().With("component", "alerts"),
	}
}

// Run checks alerts every interval until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	e.logger.Info("alert evaluator started", "interval", e.interval)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if _, err := e.Check(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("alert check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			e.logger.Info("alert evaluator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Check runs one evaluation pass and returns the alerts that fired.
func (e *Evaluator) Check(ctx context.Context) ([]model.PriceAlert, error) {
	active, err := e.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("alerts: list: %w", err)
	}
	if len(active) == 0 {
		return nil, nil
	}

	tickers, err := e.tickers.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("alerts: tickers: %w", err)
	}
	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		prices[t.Symbol] = t.Price
	}

	var fired []model.PriceAlert
	for _, a := range active {
		price, ok := prices[a.Symbol]
		if !ok || !Evaluate(a, price) {
			continue
		}
		if err := e.store.MarkTriggered(ctx, a.ID); err != nil {
			e.logger.Error("mark triggered failed", "alert", a.ID, "error", err)
			continue
		}
		fired = append(fired, a)
		if e.metrics != nil {
			e.metrics.AlertsTriggered.Inc()
		}
		e.logger.Info("alert triggered", "alert", a.ID, "symbol", a.Symbol, "price", price, "target", a.TargetPrice)

		if err := e.notifier.Send(ctx, notificationFor(a, price)); err != nil {
			e.logger.Warn("alert notification failed", "alert", a.ID, "error", err)
		}
	}
	return fired, nil
}

func notificationFor(a model.PriceAlert, price float64) notification.Alert {
	msg := fmt.Sprintf("%s is %s %s (now %s)", a.Symbol, strings.ToLower(a.Condition), formatPrice(a.TargetPrice), formatPrice(price))
	if a.Message != "" {
		msg += "\n" + a.Message
	}
	return notification.Alert{
		Level:   notification.AlertWarning,
		Title:   "Price alert: " + a.Symbol,
		Message: msg,
		Symbol:  a.Symbol,
	}
}

func formatPrice(p float64) string {
	switch {
	case p >= 1:
		return fmt.Sprintf("%.2f", p)
	default:
		return fmt.Sprintf("%.6f", p)
	}
}
