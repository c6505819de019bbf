package trading

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptodash/internal/ids"
	"cryptodash/internal/marketdata/binance"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
)

// PaperConfig configures a PaperExecutor.
type PaperConfig struct {
	InitialUSDT float64 // starting quote balance (default 10000)
	SlippageBps int64   // basis points of slippage (e.g. 5 = 0.05%)
	Metrics     *metrics.Metrics
}

// PaperExecutor simulates market orders against persisted paper balances.
type PaperExecutor struct {
	mu     sync.Mutex
	ledger PaperLedger
	prices PriceSource

	initial     decimal.Decimal
	slippageBps decimal.Decimal
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewPaperExecutor creates a paper trading executor.
func NewPaperExecutor(ledger PaperLedger, prices PriceSource, cfg PaperConfig) *PaperExecutor {
	if cfg.InitialUSDT <= 0 {
		cfg.InitialUSDT = 10000
	}
	return &PaperExecutor{
		ledger:      ledger,
		prices:      prices,
		initial:     decimal.NewFromFloat(cfg.InitialUSDT),
		slippageBps: decimal.NewFromInt(cfg.SlippageBps),
		metrics:     cfg.Metrics,
		now:         time.Now,
	}
}

// Init seeds the starting USDT balance unless one already exists.
func (p *PaperExecutor) Init(ctx context.Context) error {
	return p.ledger.EnsureBalance(ctx, "USDT", p.initial)
}

// Reset restores the account to its starting balance.
func (p *PaperExecutor) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.ResetBalances(ctx, map[string]decimal.Decimal{"USDT": p.initial})
}

// Place fills a market order at the last price, moved against the trader
// by the configured slippage. Buys need enough quote asset, sells enough
// base asset.
func (p *PaperExecutor) Place(ctx context.Context, req model.OrderRequest) (Fill, error) {
	if req.Type == "" {
		req.Type = model.OrderMarket
	}
	if req.Type != model.OrderMarket {
		return Fill{}, fmt.Errorf("%w: paper trading supports MARKET orders only", binance.ErrInvalidOrder)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return Fill{}, fmt.Errorf("%w: side must be BUY or SELL", binance.ErrInvalidOrder)
	}
	if req.Quantity <= 0 {
		return Fill{}, fmt.Errorf("%w: quantity must be positive", binance.ErrInvalidOrder)
	}
	base, quote, err := SplitSymbol(req.Symbol)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: %s", err, req.Symbol)
	}

	prices, err := p.prices.Prices(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("trading: paper price: %w", err)
	}
	last, ok := prices[req.Symbol]
	if !ok || last <= 0 {
		return Fill{}, fmt.Errorf("%w: %s", ErrNoPrice, req.Symbol)
	}

	market := decimal.NewFromFloat(last)
	slip := market.Mul(p.slippageBps).Div(decimal.NewFromInt(10000))
	fillPrice := market.Add(slip) // buy higher
	if req.Side == model.SideSell {
		fillPrice = market.Sub(slip) // sell lower
	}
	qty := decimal.NewFromFloat(req.Quantity)
	cost := qty.Mul(fillPrice)

	deltas := map[string]decimal.Decimal{}
	if req.Side == model.SideBuy {
		deltas[quote] = cost.Neg()
		deltas[base] = qty
	} else {
		deltas[base] = qty.Neg()
		deltas[quote] = cost
	}

	orderID := "PAPER-" + ids.ULID()
	fill := Fill{
		OrderID:     orderID,
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		MarketPrice: last,
		FillPrice:   fillPrice.InexactFloat64(),
		Slippage:    slip.InexactFloat64(),
		Total:       cost.InexactFloat64(),
		FilledAt:    p.now().UTC(),
	}

	p.mu.Lock()
	_, err = p.ledger.AdjustBalances(ctx, deltas, model.Transaction{
		Symbol:    req.Symbol,
		Side:      req.Side,
		Amount:    req.Quantity,
		Price:     fill.FillPrice,
		Total:     fill.Total,
		IsPaper:   true,
		OrderID:   orderID,
		Status:    "filled",
		CreatedAt: fill.FilledAt,
	})
	p.mu.Unlock()
	if err != nil {
		return Fill{}, fmt.Errorf("trading: paper fill: %w", err)
	}

	if p.metrics != nil {
		p.metrics.OrdersPlaced.WithLabelValues("paper", req.Side).Inc()
	}
	log.Printf("[paper] %s %s qty=%s price=%s (slip=%s) order=%s",
		req.Side, req.Symbol, qty, fillPrice.StringFixed(8), slip.StringFixed(8), orderID)
	return fill, nil
}

// Balances returns the paper account valued at current prices.
func (p *PaperExecutor) Balances(ctx context.Context) (BalanceReport, error) {
	raw, err := p.ledger.GetBalances(ctx)
	if err != nil {
		return BalanceReport{}, err
	}
	holdings := make([]Holding, 0, len(raw))
	for asset, amount := range raw {
		holdings = append(holdings, Holding{Asset: asset, Free: amount.InexactFloat64()})
	}

	prices, err := p.prices.Prices(ctx)
	if err != nil {
		log.Printf("[paper] price lookup failed, valuing stablecoins only: %v", err)
		prices = nil
	}
	return Value(holdings, prices), nil
}
