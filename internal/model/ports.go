package model

import "context"

// ── Port Interfaces ──
// These interfaces decouple handlers and services from concrete upstreams
// (Binance, CoinGecko, Redis) and storage (sqlite/postgres).

// CandleSource supplies an ordered candle sequence for a symbol.
type CandleSource interface {
	// Candles returns up to limit candles, oldest first.
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// TickerSource supplies 24h tickers for the tracked symbols.
type TickerSource interface {
	// Tickers returns tickers sorted by quote volume, descending.
	Tickers(ctx context.Context) ([]Ticker, error)
}

// AlertStore persists price alerts.
type AlertStore interface {
	CreateAlert(ctx context.Context, a PriceAlert) (PriceAlert, error)
	ListActiveAlerts(ctx context.Context) ([]PriceAlert, error)
	DeleteAlert(ctx context.Context, id string) error
	MarkTriggered(ctx context.Context, id string) error
}

// LedgerStore persists the trade ledger.
type LedgerStore interface {
	InsertTransaction(ctx context.Context, tx Transaction) error
	ListTransactions(ctx context.Context, limit int) ([]Transaction, error)
}

// CredentialStore persists encrypted exchange credentials.
type CredentialStore interface {
	SaveCredentials(ctx context.Context, c Credentials) error
	// GetCredentials returns nil, nil when nothing is stored under name.
	GetCredentials(ctx context.Context, name string) (*Credentials, error)
	DeleteCredentials(ctx context.Context, name string) error
}

// BundlePublisher fans out computed indicator results.
type BundlePublisher interface {
	PublishBundle(ctx context.Context, symbol, interval string, payload []byte) error
}
