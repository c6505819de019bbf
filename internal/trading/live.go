package trading

import (
	"context"
	"fmt"
	"log"

	"cryptodash/internal/marketdata/binance"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
	"cryptodash/internal/secret"
)

// LiveConfig configures a LiveExecutor.
type LiveConfig struct {
	MainnetURL string // default binance.MainnetURL
	TestnetURL string // default binance.TestnetURL
	Metrics    *metrics.Metrics
}

// CredentialStatus describes the stored credentials without exposing them.
type CredentialStatus struct {
	HasAPIKey    bool `json:"hasApiKey"`
	HasAPISecret bool `json:"hasApiSecret"`
	IsActive     bool `json:"isActive"`
	Testnet      bool `json:"testnet"`
}

// LiveExecutor trades on Binance with the credentials stored in the
// database. Public price lookups go through the unsigned client.
type LiveExecutor struct {
	creds  model.CredentialStore
	ledger model.LedgerStore
	box    *secret.Box
	public *binance.Client
	cfg    LiveConfig
}

// NewLiveExecutor creates a live executor. public is the unsigned client
// used for prices; signed clients are derived from it per request.
func NewLiveExecutor(creds model.CredentialStore, ledger model.LedgerStore, box *secret.Box, public *binance.Client, cfg LiveConfig) *LiveExecutor {
	if cfg.MainnetURL == "" {
		cfg.MainnetURL = binance.MainnetURL
	}
	if cfg.TestnetURL == "" {
		cfg.TestnetURL = binance.TestnetURL
	}
	return &LiveExecutor{creds: creds, ledger: ledger, box: box, public: public, cfg: cfg}
}

func (l *LiveExecutor) baseURL(testnet bool) string {
	if testnet {
		return l.cfg.TestnetURL
	}
	return l.cfg.MainnetURL
}

// client returns a signed client for the stored credentials.
func (l *LiveExecutor) client(ctx context.Context) (*binance.Client, *model.Credentials, error) {
	c, err := l.creds.GetCredentials(ctx, CredentialName)
	if err != nil {
		return nil, nil, err
	}
	if c == nil || c.APIKey == "" || c.APISecret == "" {
		return nil, nil, ErrNoCredentials
	}
	key := l.box.Decrypt(c.APIKey)
	sec := l.box.Decrypt(c.APISecret)
	return l.public.WithCredentials(l.baseURL(c.Testnet), key, sec), c, nil
}

// Status reports which credentials are stored. Nothing stored reads as an
// inactive testnet configuration.
func (l *LiveExecutor) Status(ctx context.Context) (CredentialStatus, error) {
	c, err := l.creds.GetCredentials(ctx, CredentialName)
	if err != nil {
		return CredentialStatus{}, err
	}
	if c == nil {
		return CredentialStatus{Testnet: true}, nil
	}
	return CredentialStatus{
		HasAPIKey:    c.APIKey != "",
		HasAPISecret: c.APISecret != "",
		IsActive:     c.IsActive,
		Testnet:      c.Testnet,
	}, nil
}

// SaveCredentials verifies the keys against the account endpoint, then
// stores them encrypted.
func (l *LiveExecutor) SaveCredentials(ctx context.Context, apiKey, apiSecret string, testnet bool) error {
	probe := l.public.WithCredentials(l.baseURL(testnet), apiKey, apiSecret)
	if _, err := probe.Account(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	encKey, err := l.box.Encrypt(apiKey)
	if err != nil {
		return err
	}
	encSecret, err := l.box.Encrypt(apiSecret)
	if err != nil {
		return err
	}
	if err := l.creds.SaveCredentials(ctx, model.Credentials{
		Name:      CredentialName,
		APIKey:    encKey,
		APISecret: encSecret,
		Testnet:   testnet,
		IsActive:  true,
	}); err != nil {
		return err
	}
	log.Printf("[live] credentials saved (testnet=%v)", testnet)
	return nil
}

// DeleteCredentials removes the stored keys.
func (l *LiveExecutor) DeleteCredentials(ctx context.Context) error {
	return l.creds.DeleteCredentials(ctx, CredentialName)
}

// Balances returns the exchange account valued in USD, and whether the
// account is on testnet.
func (l *LiveExecutor) Balances(ctx context.Context) (BalanceReport, bool, error) {
	client, creds, err := l.client(ctx)
	if err != nil {
		return BalanceReport{}, false, err
	}
	assets, err := client.Account(ctx)
	if err != nil {
		return BalanceReport{}, creds.Testnet, err
	}
	prices, err := l.public.Prices(ctx)
	if err != nil {
		log.Printf("[live] price lookup failed, valuing stablecoins only: %v", err)
	}

	holdings := make([]Holding, len(assets))
	for i, a := range assets {
		holdings[i] = Holding{Asset: a.Asset, Free: a.Free, Locked: a.Locked}
	}
	return Value(holdings, prices), creds.Testnet, nil
}

// OpenOrders lists open orders, optionally for one symbol.
func (l *LiveExecutor) OpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	client, _, err := l.client(ctx)
	if err != nil {
		return nil, err
	}
	return client.OpenOrders(ctx, symbol)
}

// Place submits an order and records it in the ledger as pending.
func (l *LiveExecutor) Place(ctx context.Context, req model.OrderRequest) (binance.OrderAck, error) {
	if _, err := binance.OrderParams(req); err != nil {
		return binance.OrderAck{}, err
	}
	client, _, err := l.client(ctx)
	if err != nil {
		return binance.OrderAck{}, err
	}
	ack, err := client.PlaceOrder(ctx, req)
	if err != nil {
		return binance.OrderAck{}, err
	}

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.OrdersPlaced.WithLabelValues("live", req.Side).Inc()
	}
	tx := model.Transaction{
		Symbol:  req.Symbol,
		Side:    req.Side,
		Amount:  req.Quantity,
		Price:   req.Price,
		Total:   req.Price * req.Quantity,
		IsPaper: false,
		OrderID: fmt.Sprintf("%d", ack.OrderID),
		Status:  "pending",
	}
	if err := l.ledger.InsertTransaction(ctx, tx); err != nil {
		// The order is live on the exchange either way.
		log.Printf("[live] order %d placed but not recorded: %v", ack.OrderID, err)
	}
	log.Printf("[live] %s %s %s qty=%v order=%d status=%s", req.Side, req.Type, req.Symbol, req.Quantity, ack.OrderID, ack.Status)
	return ack, nil
}

// Cancel cancels an open order.
func (l *LiveExecutor) Cancel(ctx context.Context, symbol string, orderID int64) error {
	client, _, err := l.client(ctx)
	if err != nil {
		return err
	}
	return client.CancelOrder(ctx, symbol, orderID)
}
