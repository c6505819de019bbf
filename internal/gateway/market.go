package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"cryptodash/internal/indengine"
	"cryptodash/internal/indicator"
	"cryptodash/internal/marketdata"
	"cryptodash/internal/model"
	redisstore "cryptodash/internal/store/redis"
)

const (
	defaultSymbol      = "BTCUSDT"
	defaultInterval    = "1h"
	defaultCandleLimit = 200
	maxCandleLimit     = 1000
)

// pairFromQuery reads symbol, interval and limit with the dashboard
// defaults. Limits above maxCandleLimit are clamped.
func pairFromQuery(r *http.Request) (symbol, interval string, limit int, msg string) {
	q := r.URL.Query()
	symbol = normalizeSymbol(q.Get("symbol"))
	if symbol == "" {
		symbol = defaultSymbol
	}
	interval = q.Get("interval")
	if interval == "" {
		interval = defaultInterval
	}
	if !marketdata.ValidInterval(interval) {
		return "", "", 0, "Invalid interval. Valid intervals: " + strings.Join(marketdata.Intervals(), ", ")
	}
	limit = defaultCandleLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return "", "", 0, "limit must be a positive integer"
		}
		limit = min(n, maxCandleLimit)
	}
	return symbol, interval, limit, ""
}

// GET /api/candles?symbol=BTCUSDT&interval=1h&limit=200
func (a *API) handleCandles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	symbol, interval, limit, msg := pairFromQuery(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	cfg, err := a.Indicators.Get().WithQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candles, source, err := a.Market.CandlesFrom(r.Context(), symbol, interval, limit)
	if err != nil {
		a.fail(w, r, err, "Error fetching candlestick data")
		return
	}
	if candles == nil {
		candles = []model.Candle{}
	}

	res := indicator.Compute(candles, cfg)
	writeJSON(w, http.StatusOK, CandlesResponse{
		Success:    true,
		Symbol:     symbol,
		Interval:   interval,
		Source:     source,
		Candles:    candles,
		Indicators: res.Indicators,
		Stats:      res.Stats,
		Timestamp:  nowISO(),
	})
}

// POST /api/indicators computes indicators for caller-supplied candles.
func (a *API) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req IndicatorsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := a.Indicators.Get()
	if req.Config != nil {
		cfg = req.Config.apply(cfg)
	}
	cfg, err := cfg.WithQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := indicator.Compute(req.Candles, cfg)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"indicators": res.Indicators,
		"stats":      res.Stats,
	})
}

func (c IndicatorsConfig) apply(base indicator.Config) indicator.Config {
	out := base
	if len(c.SMAPeriods) > 0 {
		out.SMAPeriods = append([]int(nil), c.SMAPeriods...)
	}
	set := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	set(&out.RSIPeriod, c.RSIPeriod)
	set(&out.MACD.Fast, c.MACDFast)
	set(&out.MACD.Slow, c.MACDSlow)
	set(&out.MACD.Signal, c.MACDSignal)
	set(&out.StatsWindow, c.StatsWindow)
	return out
}

// GET/POST /api/indicators/config reads or replaces the active indicator
// parameters used by the REST endpoints and the indicator engine.
func (a *API) handleIndicatorConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := a.Indicators.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"config":  cfg,
			"specs":   indengine.FormatIndicatorSpecs(cfg),
		})
	case http.MethodPost:
		// Fields missing from the body keep their active values.
		cfg := a.Indicators.Get()
		if err := decodeJSON(w, r, &cfg); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.Indicators.Set(r.Context(), cfg); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": a.Indicators.Get()})
	default:
		methodNotAllowed(w)
	}
}

// GET /api/indicators/latest returns the last update seen per channel.
func (a *API) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.Hub.LatestAll())
}

// GET /api/prices
func (a *API) handlePrices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	tickers, source, err := a.Market.TickersFrom(r.Context())
	if err != nil {
		a.log.Error("prices unavailable", "error", err)
		writeJSON(w, http.StatusInternalServerError, PricesResponse{
			Error:  "Unable to fetch prices from any source",
			Prices: []model.Ticker{},
			Forex:  []model.Ticker{},
		})
		return
	}
	writeJSON(w, http.StatusOK, PricesResponse{
		Success:   true,
		Prices:    tickers,
		Forex:     []model.Ticker{},
		Timestamp: nowISO(),
		Total:     len(tickers),
		Source:    source,
	})
}

// GET /api/replay?symbol=BTCUSDT&interval=1h&from=10&to=20 returns the
// buffered WS envelopes of a channel for gap backfill. to defaults to the
// channel's current seq.
func (a *API) handleReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	symbol := normalizeSymbol(q.Get("symbol"))
	interval := q.Get("interval")
	if symbol == "" || !marketdata.ValidInterval(interval) {
		writeError(w, http.StatusBadRequest, "symbol and a valid interval are required")
		return
	}
	channel := redisstore.IndicatorChannel(interval, symbol)
	current := a.Hub.GetChannelSeq(channel)

	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be an integer")
		return
	}
	to := current
	if raw := q.Get("to"); raw != "" {
		if to, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "to must be an integer")
			return
		}
	}

	raw := a.Hub.GetReplayRange(channel, from, to)
	envelopes := make([]json.RawMessage, len(raw))
	for i, e := range raw {
		envelopes[i] = e
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel":     channel,
		"channel_seq": current,
		"envelopes":   envelopes,
	})
}

// GET /api/metrics returns the gateway's system snapshot.
func (a *API) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.Hub.Metrics())
}
