package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/indicator"
	"cryptodash/internal/llm"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
	"cryptodash/internal/notification"
	"cryptodash/internal/store/sqlstore"
	"cryptodash/internal/trading"
)

type fakeMarket struct {
	mu        sync.Mutex
	candles   []model.Candle
	tickers   []model.Ticker
	err       error
	lastLimit int
}

func (f *fakeMarket) CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.err != nil {
		return nil, "", f.err
	}
	return f.candles, "binance", nil
}

func (f *fakeMarket) TickersFrom(ctx context.Context) ([]model.Ticker, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.tickers, "cache", nil
}

type staticPrices map[string]float64

func (s staticPrices) Prices(ctx context.Context) (map[string]float64, error) { return s, nil }

type fakeCompleter struct {
	reply string
	err   error
	got   []llm.Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []llm.Message, temperature float64) (string, error) {
	f.got = messages
	return f.reply, f.err
}

func rising(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := 100 + float64(i)
		out[i] = model.Candle{Time: int64(1700000000 + i*3600), Open: p - 0.5, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return out
}

type testEnv struct {
	api    *API
	market *fakeMarket
	store  *sqlstore.Store
	server http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	paper := trading.NewPaperExecutor(st, staticPrices{"BTCUSDT": 50000}, trading.PaperConfig{InitialUSDT: 10000})
	require.NoError(t, paper.Init(context.Background()))

	m := metrics.NewMetrics(prometheus.NewRegistry())
	hub := NewHub(nil, m)
	market := &fakeMarket{
		candles: rising(60),
		tickers: []model.Ticker{{Symbol: "BTCUSDT", Price: 50000, Type: "crypto"}},
	}
	api := NewAPI(Deps{
		Market:     market,
		Alerts:     st,
		Ledger:     st,
		Paper:      paper,
		Hub:        hub,
		Indicators: NewConfigStore(hub, nil, indicator.DefaultConfig()),
		Metrics:    m,
		Health:     metrics.NewHealthStatus(),
	})
	return &testEnv{api: api, market: market, store: st, server: api.Routes()}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCandles(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/candles?symbol=btcusdt&interval=1h&limit=60", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CandlesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "BTCUSDT", resp.Symbol)
	assert.Equal(t, "1h", resp.Interval)
	assert.Equal(t, "binance", resp.Source)
	assert.Len(t, resp.Candles, 60)
	assert.Len(t, resp.Indicators.SMA20, 41)
	assert.Len(t, resp.Indicators.SMA50, 11)
	require.NotNil(t, resp.Indicators.CurrentRSI)
	assert.Equal(t, 159.0, resp.Stats.CurrentPrice)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestCandlesQueryValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/candles?interval=7m", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "Invalid interval")

	rec = env.do(t, http.MethodGet, "/api/candles?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/candles?rsiPeriod=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/candles?limit=5000", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxCandleLimit, env.market.lastLimit)

	rec = env.do(t, http.MethodGet, "/api/candles", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultCandleLimit, env.market.lastLimit)

	rec = env.do(t, http.MethodPost, "/api/candles", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCandlesUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.market.err = errors.New("all sources down")

	rec := env.do(t, http.MethodGet, "/api/candles", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Error fetching candlestick data", body["error"])
}

func TestIndicatorsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/indicators", IndicatorsRequest{
		Candles: rising(30),
		Config:  &IndicatorsConfig{RSIPeriod: 5},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success    bool                  `json:"success"`
		Indicators model.IndicatorBundle `json:"indicators"`
		Stats      model.Stats           `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Indicators.SMA20, 11)
	assert.Empty(t, resp.Indicators.SMA50)
	// 30 closes with period 5 give 25 RSI samples.
	assert.Len(t, resp.Indicators.RSI, 25)
	require.NotNil(t, resp.Indicators.CurrentRSI)
	assert.Equal(t, 100.0, *resp.Indicators.CurrentRSI)

	rec = env.do(t, http.MethodPost, "/api/indicators", IndicatorsRequest{
		Candles: rising(5),
		Config:  &IndicatorsConfig{MACDFast: 30, MACDSlow: 10},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndicatorConfig(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/indicators/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SMA:20,SMA:50,RSI:14,MACD:12/26/9,WINDOW:24", decodeBody(t, rec)["specs"])

	rec = env.do(t, http.MethodPost, "/api/indicators/config", map[string]any{"rsiPeriod": 7, "smaPeriods": []int{20, 50, 200}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg := env.api.Indicators.Get()
	assert.Equal(t, 7, cfg.RSIPeriod)
	assert.Equal(t, []int{20, 50, 200}, cfg.SMAPeriods)
	assert.Equal(t, 26, cfg.MACD.Slow)

	rec = env.do(t, http.MethodPost, "/api/indicators/config", map[string]any{"rsiPeriod": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 7, env.api.Indicators.Get().RSIPeriod)

	// The active config drives /api/candles.
	rec = env.do(t, http.MethodGet, "/api/candles?limit=60", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CandlesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Indicators.RSI, 53)
}

func TestConfigStoreBroadcastsUpdate(t *testing.T) {
	env := newTestEnv(t)
	c := testClient(env.api.Hub)

	cfg := indicator.DefaultConfig()
	cfg.StatsWindow = 48
	require.NoError(t, env.api.Indicators.Set(context.Background(), cfg))

	msgs := drain(c)
	require.Len(t, msgs, 1)
	var msg struct {
		Type   string           `json:"type"`
		Config indicator.Config `json:"config"`
	}
	require.NoError(t, json.Unmarshal(msgs[0], &msg))
	assert.Equal(t, "config_update", msg.Type)
	assert.Equal(t, 48, msg.Config.StatsWindow)

	assert.False(t, env.api.Indicators.Load(context.Background()))
}

func TestPrices(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp PricesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "cache", resp.Source)
	assert.NotNil(t, resp.Forex)

	env.market.err = errors.New("down")
	rec = env.do(t, http.MethodGet, "/api/prices", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Unable to fetch prices from any source", body["error"])
	assert.Equal(t, []any{}, body["prices"])
}

func TestAlertsLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/alerts", AlertRequest{Symbol: "ethusdt", TargetPrice: 4000, Condition: "Above"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created struct {
		Alert model.PriceAlert `json:"alert"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "ETHUSDT", created.Alert.Symbol)
	assert.Equal(t, "above", created.Alert.Condition)
	assert.Equal(t, "ETHUSDT above $4000", created.Alert.Message)

	rec = env.do(t, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Alerts []model.PriceAlert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Alerts, 1)

	rec = env.do(t, http.MethodDelete, "/api/alerts?id="+created.Alert.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/alerts?id="+created.Alert.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/alerts", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertsValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/alerts", AlertRequest{Symbol: "BTCUSDT", TargetPrice: 1, Condition: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/alerts", AlertRequest{Symbol: "BTCUSDT", Condition: "below"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/alerts", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPaperTrading(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/paper/orders", model.OrderRequest{Symbol: "btcusdt", Side: "buy", Quantity: 0.1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var placed struct {
		Order trading.Fill `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &placed))
	assert.Equal(t, "BTCUSDT", placed.Order.Symbol)
	assert.InDelta(t, 5000, placed.Order.Total, 1e-6)

	rec = env.do(t, http.MethodGet, "/api/paper/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bal BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	assert.True(t, bal.Success)
	assert.False(t, bal.IsReal)
	assert.InDelta(t, 10000, bal.TotalUSD, 1e-6)

	rec = env.do(t, http.MethodGet, "/api/transactions?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs struct {
		Transactions []model.Transaction `json:"transactions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs.Transactions, 1)
	assert.True(t, txs.Transactions[0].IsPaper)

	// Not enough USDT left.
	rec = env.do(t, http.MethodPost, "/api/paper/orders", model.OrderRequest{Symbol: "BTCUSDT", Side: "BUY", Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/paper/orders", model.OrderRequest{Symbol: "BTCUSDT", Side: "BUY", Type: "LIMIT", Quantity: 0.01})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/paper/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/paper/balance", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bal))
	require.Len(t, bal.Balances, 1)
	assert.Equal(t, "USDT", bal.Balances[0].Asset)

	rec = env.do(t, http.MethodGet, "/api/transactions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveRoutesDisabled(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/config", "/api/balance", "/api/orders"} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

type stubNotifier struct {
	err  error
	sent []notification.Alert
}

func (s *stubNotifier) Send(ctx context.Context, a notification.Alert) error {
	s.sent = append(s.sent, a)
	return s.err
}

func TestNotificationTest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/notifications/test", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	tg := &stubNotifier{}
	wa := &stubNotifier{err: errors.New("whatsapp: status 401: invalid api key")}
	env.api.Notifier = notification.NewMulti().Add("telegram", tg).Add("whatsapp", wa)

	rec = env.do(t, http.MethodPost, "/api/notifications/test", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool                  `json:"success"`
		Results []notification.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, []notification.Result{
		{Channel: "telegram", Success: true},
		{Channel: "whatsapp", Success: false, Error: "whatsapp: status 401: invalid api key"},
	}, resp.Results)
	require.Len(t, tg.sent, 1)
	assert.Equal(t, "Test notification", tg.sent[0].Title)

	rec = env.do(t, http.MethodPost, "/api/notifications/test", NotificationTestRequest{Channel: "Telegram"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["results"], 1)
	assert.Len(t, tg.sent, 2)
	assert.Len(t, wa.sent, 1)

	rec = env.do(t, http.MethodPost, "/api/notifications/test", NotificationTestRequest{Channel: "email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "telegram, whatsapp")
}

func TestAnalysis(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{Symbol: "BTCUSDT"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fc := &fakeCompleter{reply: "Uptrend intact."}
	env.api.Analyst = llm.NewAnalyst(fc, 0.2)

	rec = env.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{Symbol: "ethusdt", Interval: "4h", Question: "Is momentum fading?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp AnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ETHUSDT", resp.Symbol)
	assert.Equal(t, "4h", resp.Interval)
	assert.Equal(t, "Uptrend intact.", resp.Analysis)
	require.NotEmpty(t, fc.got)
	assert.Equal(t, "Is momentum fading?", fc.got[len(fc.got)-1].Content)

	rec = env.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{Interval: "9x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	fc.err = errors.New("quota exceeded")
	rec = env.do(t, http.MethodPost, "/api/analysis", AnalysisRequest{})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestReplayEndpoint(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.api.Hub.Broadcaster.Broadcast("pub:ind:1h:BTCUSDT", []byte(`{"symbol":"BTCUSDT"}`))
	}

	rec := env.do(t, http.MethodGet, "/api/replay?symbol=BTCUSDT&interval=1h&from=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Channel    string     `json:"channel"`
		ChannelSeq int64      `json:"channel_seq"`
		Envelopes  []envelope `json:"envelopes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pub:ind:1h:BTCUSDT", resp.Channel)
	assert.EqualValues(t, 3, resp.ChannelSeq)
	require.Len(t, resp.Envelopes, 2)
	assert.EqualValues(t, 2, resp.Envelopes[0].ChannelSeq)

	rec = env.do(t, http.MethodGet, "/api/replay?symbol=BTCUSDT&interval=1h", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/indicators/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "pub:ind:1h:BTCUSDT")
}

func TestSystemMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.api.Hub.Latency.Record(12)

	rec := env.do(t, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m SystemMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 1, m.Latency.Count)
	assert.Equal(t, 12.0, m.Latency.P50)

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodOptions, "/api/candles", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.Header.Set("X-Trace-Id", "trace-123")
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	assert.Equal(t, "trace-123", rr.Header().Get("X-Trace-Id"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(sqlstore.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, statusFor(trading.ErrNoCredentials))
	assert.Equal(t, http.StatusBadRequest, statusFor(sqlstore.ErrInsufficientBalance))
	assert.Equal(t, http.StatusBadGateway, statusFor(trading.ErrNoPrice))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
