package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"cryptodash/internal/model"
)

// AssetBalance is one non-empty balance line of /api/v3/account.
type AssetBalance struct {
	Asset  string
	Free   float64
	Locked float64
}

// OrderAck is Binance's response to a new order.
type OrderAck struct {
	OrderID int64  `json:"orderId"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Type        string `json:"type"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Status      string `json:"status"`
	Time        int64  `json:"time"`
	StopPrice   string `json:"stopPrice"`
}

// Account returns the balances with a non-zero free or locked amount.
func (c *Client) Account(ctx context.Context) ([]AssetBalance, error) {
	var resp accountResponse
	if err := c.signed(ctx, http.MethodGet, "/api/v3/account", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]AssetBalance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		free, locked := parseFloat(b.Free), parseFloat(b.Locked)
		if free <= 0 && locked <= 0 {
			continue
		}
		out = append(out, AssetBalance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

// OpenOrders lists open orders, optionally for one symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	var rows []orderResponse
	if err := c.signed(ctx, http.MethodGet, "/api/v3/openOrders", params, &rows); err != nil {
		return nil, err
	}

	orders := make([]model.Order, 0, len(rows))
	for _, r := range rows {
		o := model.Order{
			OrderID:     r.OrderID,
			Symbol:      r.Symbol,
			Type:        r.Type,
			Side:        r.Side,
			Price:       parseFloat(r.Price),
			OrigQty:     parseFloat(r.OrigQty),
			ExecutedQty: parseFloat(r.ExecutedQty),
			Status:      r.Status,
			Time:        r.Time,
		}
		if sp := parseFloat(r.StopPrice); sp != 0 {
			o.StopPrice = &sp
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ErrInvalidOrder is returned for requests Binance would reject outright.
var ErrInvalidOrder = errors.New("binance: invalid order")

// OrderParams builds the query parameters for a new order. Limit-style
// orders are good-till-cancelled.
func OrderParams(req model.OrderRequest) (url.Values, error) {
	if req.Symbol == "" || req.Side == "" || req.Type == "" || req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: symbol, side, type and quantity are required", ErrInvalidOrder)
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", req.Side)
	params.Set("type", req.Type)
	params.Set("quantity", formatFloat(req.Quantity))

	switch req.Type {
	case model.OrderMarket:
	case model.OrderLimit:
		if req.Price <= 0 {
			return nil, fmt.Errorf("%w: LIMIT requires price", ErrInvalidOrder)
		}
		params.Set("price", formatFloat(req.Price))
		params.Set("timeInForce", "GTC")
	case model.OrderStopLossLimit, model.OrderTakeProfitLimit:
		if req.Price <= 0 || req.StopPrice <= 0 {
			return nil, fmt.Errorf("%w: %s requires price and stopPrice", ErrInvalidOrder, req.Type)
		}
		params.Set("price", formatFloat(req.Price))
		params.Set("stopPrice", formatFloat(req.StopPrice))
		params.Set("timeInForce", "GTC")
	case model.OrderStopLoss:
		if req.StopPrice <= 0 {
			return nil, fmt.Errorf("%w: STOP_LOSS requires stopPrice", ErrInvalidOrder)
		}
		params.Set("stopPrice", formatFloat(req.StopPrice))
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidOrder, req.Type)
	}
	return params, nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (OrderAck, error) {
	params, err := OrderParams(req)
	if err != nil {
		return OrderAck{}, err
	}
	var ack OrderAck
	if err := c.signed(ctx, http.MethodPost, "/api/v3/order", params, &ack); err != nil {
		return OrderAck{}, err
	}
	return ack, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	return c.signed(ctx, http.MethodDelete, "/api/v3/order", params, nil)
}
