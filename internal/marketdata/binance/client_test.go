package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret", RPS: 1000})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestCandles_ParsesKlines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100.5","101","99.5","100.75","12.5",1700003599999,"0",1,"0","0","0"],
			[1700003600000,"100.75","102","100","101.5","8",1700007199999,"0",1,"0","0","0"]
		]`))
	})

	candles, err := c.Candles(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, model.Candle{Time: 1700000000, Open: 100.5, High: 101, Low: 99.5, Close: 100.75, Volume: 12.5}, candles[0])
	assert.Equal(t, int64(1700003600), candles[1].Time)
}

func TestCandles_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := c.Candles(context.Background(), "NOPE", "1h", 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, -1121, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, err.Error(), "Invalid symbol.")
	assert.True(t, apiErr.ClientError())
}

func TestAPIError_ClientError(t *testing.T) {
	assert.True(t, (&APIError{Status: http.StatusNotFound}).ClientError())
	assert.False(t, (&APIError{Status: http.StatusTooManyRequests}).ClientError())
	assert.False(t, (&APIError{Status: http.StatusTeapot}).ClientError())
	assert.False(t, (&APIError{Status: http.StatusBadGateway}).ClientError())
}

func TestCandles_MalformedRow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[1700000000000,"abc","1","1","1","1"]]`))
	})
	_, err := c.Candles(context.Background(), "BTCUSDT", "1h", 1)
	assert.Error(t, err)
}

func TestTickers_FiltersAndSorts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		w.Write([]byte(`[
			{"symbol":"ETHUSDT","lastPrice":"2000","priceChangePercent":"-1.5","highPrice":"2100","lowPrice":"1900","volume":"10","quoteVolume":"20000"},
			{"symbol":"BTCEUR","lastPrice":"30000","priceChangePercent":"0","highPrice":"0","lowPrice":"0","volume":"0","quoteVolume":"99999999"},
			{"symbol":"BTCUSDT","lastPrice":"35000","priceChangePercent":"2.25","highPrice":"36000","lowPrice":"34000","volume":"5","quoteVolume":"175000"}
		]`))
	})

	tickers, err := c.Tickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 2)
	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.Equal(t, 2.25, tickers[0].Change24h)
	assert.Equal(t, "crypto", tickers[0].Type)
	assert.Equal(t, "ETHUSDT", tickers[1].Symbol)
}

func TestPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"35000.1"},{"symbol":"ETHBTC","price":"0.05"}]`))
	})
	prices, err := c.Prices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 35000.1, prices["BTCUSDT"])
	assert.Equal(t, 0.05, prices["ETHBTC"])
}

func TestSign_KnownVector(t *testing.T) {
	// Example from the Binance API documentation.
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", Sign(secret, payload))
}

func TestAccount_SignedRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		q := r.URL.RawQuery
		idx := strings.LastIndex(q, "&signature=")
		if !assert.Positive(t, idx) {
			return
		}
		assert.Equal(t, Sign("secret", q[:idx]), q[idx+len("&signature="):])
		assert.Equal(t, "1700000000000", r.URL.Query().Get("timestamp"))

		w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0.1"},
			{"asset":"DUST","free":"0","locked":"0"},
			{"asset":"USDT","free":"100","locked":"0"}
		]}`))
	})

	balances, err := c.Account(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, AssetBalance{Asset: "BTC", Free: 0.5, Locked: 0.1}, balances[0])
}

func TestSigned_RequiresCredentials(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	_, err := c.Account(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API credentials")
}

func TestOpenOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/openOrders", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`[
			{"orderId":7,"symbol":"BTCUSDT","type":"LIMIT","side":"BUY","price":"30000","origQty":"0.01","executedQty":"0","status":"NEW","time":1700000000000,"stopPrice":"0.00000000"},
			{"orderId":8,"symbol":"BTCUSDT","type":"STOP_LOSS_LIMIT","side":"SELL","price":"29000","origQty":"0.01","executedQty":"0","status":"NEW","time":1700000000001,"stopPrice":"29100"}
		]`))
	})

	orders, err := c.OpenOrders(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Nil(t, orders[0].StopPrice)
	require.NotNil(t, orders[1].StopPrice)
	assert.Equal(t, 29100.0, *orders[1].StopPrice)
}

func TestPlaceOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "0.015", q.Get("quantity"))
		assert.Equal(t, "30000", q.Get("price"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		w.Write([]byte(`{"orderId":42,"symbol":"BTCUSDT","status":"NEW"}`))
	})

	ack, err := c.PlaceOrder(context.Background(), model.OrderRequest{
		Symbol: "BTCUSDT", Side: model.SideBuy, Type: model.OrderLimit, Quantity: 0.015, Price: 30000,
	})
	require.NoError(t, err)
	assert.Equal(t, OrderAck{OrderID: 42, Symbol: "BTCUSDT", Status: "NEW"}, ack)
}

func TestOrderParams_Validation(t *testing.T) {
	cases := []model.OrderRequest{
		{Symbol: "BTCUSDT", Side: "BUY", Type: "MARKET"},
		{Symbol: "BTCUSDT", Side: "BUY", Type: "LIMIT", Quantity: 1},
		{Symbol: "BTCUSDT", Side: "SELL", Type: "STOP_LOSS", Quantity: 1},
		{Symbol: "BTCUSDT", Side: "SELL", Type: "STOP_LOSS_LIMIT", Quantity: 1, Price: 10},
		{Symbol: "BTCUSDT", Side: "SELL", Type: "OCO", Quantity: 1},
	}
	for _, req := range cases {
		_, err := OrderParams(req)
		assert.ErrorIs(t, err, ErrInvalidOrder, "%+v", req)
	}

	params, err := OrderParams(model.OrderRequest{Symbol: "BTCUSDT", Side: "SELL", Type: "STOP_LOSS", Quantity: 1, StopPrice: 25000})
	require.NoError(t, err)
	assert.Equal(t, "25000", params.Get("stopPrice"))
	assert.Empty(t, params.Get("timeInForce"))
}

func TestCancelOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "42", r.URL.Query().Get("orderId"))
		w.Write([]byte(`{}`))
	})
	require.NoError(t, c.CancelOrder(context.Background(), "BTCUSDT", 42))
}

func TestWithCredentials_SharesLimiter(t *testing.T) {
	base := New(Config{})
	cp := base.WithCredentials(TestnetURL, "k", "s")
	assert.Equal(t, TestnetURL, cp.BaseURL())
	assert.Equal(t, MainnetURL, base.BaseURL())
	assert.Same(t, base.limiter, cp.limiter)
}
