// Package trading places orders against Binance or a simulated paper
// account and values balances in USD.
package trading

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptodash/internal/model"
)

var (
	// ErrNoCredentials is returned when live trading has no stored API keys.
	ErrNoCredentials = errors.New("trading: no API credentials configured")
	// ErrUnknownSymbol is returned when a symbol has no recognised quote asset.
	ErrUnknownSymbol = errors.New("trading: unknown symbol")
	// ErrNoPrice is returned when the last price of a symbol is unavailable.
	ErrNoPrice = errors.New("trading: no price")
	// ErrInvalidCredentials is returned when Binance rejects keys being saved.
	ErrInvalidCredentials = errors.New("trading: invalid API credentials")
)

// CredentialName is the api_credentials row used for Binance.
const CredentialName = "binance"

// PriceSource returns last prices keyed by symbol.
type PriceSource interface {
	Prices(ctx context.Context) (map[string]float64, error)
}

// TickerPrices adapts a TickerSource to a PriceSource.
type TickerPrices struct {
	Source model.TickerSource
}

func (t TickerPrices) Prices(ctx context.Context) (map[string]float64, error) {
	tickers, err := t.Source.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(tickers))
	for _, tk := range tickers {
		out[tk.Symbol] = tk.Price
	}
	return out, nil
}

// PaperLedger persists simulated balances and the trades that move them.
type PaperLedger interface {
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)
	EnsureBalance(ctx context.Context, asset string, amount decimal.Decimal) error
	AdjustBalances(ctx context.Context, deltas map[string]decimal.Decimal, tx model.Transaction) (model.Transaction, error)
	ResetBalances(ctx context.Context, balances map[string]decimal.Decimal) error
}

// Fill is a simulated execution.
type Fill struct {
	OrderID     string    `json:"orderId"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    float64   `json:"quantity"`
	MarketPrice float64   `json:"marketPrice"`
	FillPrice   float64   `json:"fillPrice"`
	Slippage    float64   `json:"slippage"` // per unit, in quote asset
	Total       float64   `json:"total"`
	FilledAt    time.Time `json:"filledAt"`
}

var quoteAssets = []string{"USDT", "FDUSD", "USDC", "BUSD", "BTC", "ETH", "BNB"}

// SplitSymbol splits a pair such as ETHUSDT into base and quote assets.
func SplitSymbol(symbol string) (base, quote string, err error) {
	symbol = strings.ToUpper(symbol)
	for _, q := range quoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q, nil
		}
	}
	return "", "", ErrUnknownSymbol
}
