package model

import "time"

// Side values for orders and transactions.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types accepted by the exchange.
const (
	OrderMarket          = "MARKET"
	OrderLimit           = "LIMIT"
	OrderStopLoss        = "STOP_LOSS"
	OrderStopLossLimit   = "STOP_LOSS_LIMIT"
	OrderTakeProfitLimit = "TAKE_PROFIT_LIMIT"
)

// OrderRequest is a client request to place an order.
type OrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // BUY, SELL
	Type      string  `json:"type"` // MARKET, LIMIT, STOP_LOSS, ...
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	StopPrice float64 `json:"stopPrice,omitempty"`
}

// Order is an exchange order as reported back to the dashboard.
type Order struct {
	OrderID     int64    `json:"orderId"`
	Symbol      string   `json:"symbol"`
	Type        string   `json:"type"`
	Side        string   `json:"side"`
	Price       float64  `json:"price"`
	OrigQty     float64  `json:"origQty"`
	ExecutedQty float64  `json:"executedQty"`
	Status      string   `json:"status"`
	Time        int64    `json:"time"`
	StopPrice   *float64 `json:"stopPrice"`
}

// Transaction is a ledger row for a paper or real trade.
type Transaction struct {
	ID        string    `json:"id" db:"id"`
	Symbol    string    `json:"symbol" db:"symbol"`
	Side      string    `json:"type" db:"side"`
	Amount    float64   `json:"amount" db:"amount"`
	Price     float64   `json:"price" db:"price"`
	Total     float64   `json:"total" db:"total"`
	IsPaper   bool      `json:"isPaper" db:"is_paper"`
	OrderID   string    `json:"orderId" db:"order_id"`
	Status    string    `json:"status" db:"status"` // pending, filled, cancelled
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
