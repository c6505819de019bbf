package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"cryptodash/internal/marketdata"
	"cryptodash/internal/model"
)

// tickerResponse is one row of /api/v3/ticker/24hr. Binance encodes numbers
// as strings.
type tickerResponse struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

type priceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Candles implements model.CandleSource using /api/v3/klines.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var rows [][]any
	if err := c.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	for i, row := range rows {
		k, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance: kline %d: %w", i, err)
		}
		candles = append(candles, k)
	}
	return candles, nil
}

// parseKline converts [openTime, "open", "high", "low", "close", "volume", ...].
func parseKline(row []any) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("short row (%d fields)", len(row))
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("open time is %T", row[0])
	}
	var vals [5]float64
	for i := range vals {
		s, ok := row[i+1].(string)
		if !ok {
			return model.Candle{}, fmt.Errorf("field %d is %T", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return model.Candle{
		Time:   int64(openTime) / 1000,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Tickers implements model.TickerSource using /api/v3/ticker/24hr, keeping
// only tracked symbols, sorted by quote volume.
func (c *Client) Tickers(ctx context.Context) ([]model.Ticker, error) {
	var rows []tickerResponse
	if err := c.get(ctx, "/api/v3/ticker/24hr", nil, &rows); err != nil {
		return nil, err
	}

	tickers := make([]model.Ticker, 0, 64)
	for _, r := range rows {
		if !marketdata.IsTracked(r.Symbol) {
			continue
		}
		tickers = append(tickers, model.Ticker{
			Symbol:      r.Symbol,
			Price:       parseFloat(r.LastPrice),
			Change24h:   parseFloat(r.PriceChangePercent),
			High24h:     parseFloat(r.HighPrice),
			Low24h:      parseFloat(r.LowPrice),
			Volume:      parseFloat(r.Volume),
			QuoteVolume: parseFloat(r.QuoteVolume),
			Type:        "crypto",
		})
	}
	marketdata.SortByQuoteVolume(tickers)
	return tickers, nil
}

// Prices returns the last price of every listed symbol from
// /api/v3/ticker/price.
func (c *Client) Prices(ctx context.Context) (map[string]float64, error) {
	var rows []priceResponse
	if err := c.get(ctx, "/api/v3/ticker/price", nil, &rows); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.Symbol] = parseFloat(r.Price)
	}
	return out, nil
}
