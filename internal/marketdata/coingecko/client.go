// Package coingecko is the fallback market data source. It serves 24h
// tickers from /coins/markets and OHLC candles from /coins/{id}/ohlc.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cryptodash/internal/marketdata"
	"cryptodash/internal/model"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// ErrUnsupportedSymbol is returned for symbols with no CoinGecko id.
var ErrUnsupportedSymbol = errors.New("coingecko: unsupported symbol")

// ohlcDays are the day ranges /coins/{id}/ohlc accepts.
var ohlcDays = []int{1, 7, 14, 30, 90, 180, 365}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RPM        int // requests per minute (default 30, the public tier)
	HTTPClient *http.Client
}

// Client is a CoinGecko REST client.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type marketResponse struct {
	ID                       string   `json:"id"`
	CurrentPrice             float64  `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
	TotalVolume              float64  `json:"total_volume"`
	MarketCap                float64  `json:"market_cap"`
}

// New creates a CoinGecko client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPM <= 0 {
		cfg.RPM = 30
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RPM)), 5),
	}
}

// Tickers implements model.TickerSource. CoinGecko has no quote volume, so
// market cap stands in for it when ordering.
func (c *Client) Tickers(ctx context.Context) ([]model.Ticker, error) {
	symbols := marketdata.TrackedSymbols()
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		id, _ := marketdata.CoinGeckoID(s)
		ids = append(ids, id)
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("ids", strings.Join(ids, ","))
	params.Set("order", "market_cap_desc")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")

	var rows []marketResponse
	if err := c.get(ctx, "/coins/markets", params, &rows); err != nil {
		return nil, err
	}

	tickers := make([]model.Ticker, 0, len(rows))
	for _, r := range rows {
		symbol, ok := marketdata.SymbolForCoinGeckoID(r.ID)
		if !ok {
			continue
		}
		tickers = append(tickers, model.Ticker{
			Symbol:      symbol,
			Price:       r.CurrentPrice,
			Change24h:   orDefault(r.PriceChangePercentage24h, 0),
			High24h:     orDefault(r.High24h, r.CurrentPrice),
			Low24h:      orDefault(r.Low24h, r.CurrentPrice),
			Volume:      r.TotalVolume,
			QuoteVolume: r.MarketCap,
			Type:        "crypto",
		})
	}
	marketdata.SortByQuoteVolume(tickers)
	return tickers, nil
}

// Candles implements model.CandleSource from /coins/{id}/ohlc. CoinGecko
// picks the candle granularity from the day range, so the result only
// approximates interval; volume is not available and is zero.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	id, ok := marketdata.CoinGeckoID(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	step, ok := marketdata.IntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("coingecko: invalid interval %q", interval)
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(DaysFor(step, limit)))

	var rows [][]float64
	if err := c.get(ctx, "/coins/"+url.PathEscape(id)+"/ohlc", params, &rows); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		candles = append(candles, model.Candle{
			Time:  int64(r[0]) / 1000,
			Open:  r[1],
			High:  r[2],
			Low:   r[3],
			Close: r[4],
		})
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// DaysFor returns the smallest accepted OHLC day range covering limit
// candles of length step.
func DaysFor(step time.Duration, limit int) int {
	span := step * time.Duration(max(limit, 1))
	need := int((span + 24*time.Hour - 1) / (24 * time.Hour))
	for _, d := range ohlcDays {
		if d >= need {
			return d
		}
	}
	return ohlcDays[len(ohlcDays)-1]
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("coingecko: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("coingecko: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coingecko: GET %s: http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("coingecko: decode %s: %w", path, err)
	}
	return nil
}

func orDefault(v *float64, def float64) float64 {
	if v == nil || *v == 0 {
		return def
	}
	return *v
}
