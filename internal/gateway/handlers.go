package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptodash/internal/llm"
	"cryptodash/internal/logger"
	"cryptodash/internal/marketdata/binance"
	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
	"cryptodash/internal/notification"
	"cryptodash/internal/store/sqlstore"
	"cryptodash/internal/trading"
)

const maxBodyBytes = 1 << 20

// MarketData serves candles and tickers along with the name of the source
// that answered.
type MarketData interface {
	CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error)
	TickersFrom(ctx context.Context) ([]model.Ticker, string, error)
}

// Deps are the collaborators behind the REST API. Live, Analyst and
// Notifier may be nil; their routes then answer 503.
type Deps struct {
	Market     MarketData
	Alerts     model.AlertStore
	Ledger     model.LedgerStore
	Live       *trading.LiveExecutor
	Paper      *trading.PaperExecutor
	Analyst    *llm.Analyst
	Notifier   *notification.Multi
	Hub        *Hub
	Indicators *ConfigStore
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
}

// API is the dashboard's HTTP surface.
type API struct {
	Deps
	log *slog.Logger
}

// NewAPI creates the API.
func NewAPI(deps Deps) *API {
	return &API{Deps: deps, log: slog.Default().With("component", "gateway")}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Trace-Id")
}

// Routes registers every endpoint on a new mux.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	// The WS upgrade needs the raw ResponseWriter, so it skips instrument.
	mux.HandleFunc("/ws", a.Hub.HandleWS)

	a.handle(mux, "/api/candles", a.handleCandles)
	a.handle(mux, "/api/indicators", a.handleIndicators)
	a.handle(mux, "/api/indicators/config", a.handleIndicatorConfig)
	a.handle(mux, "/api/indicators/latest", a.handleLatest)
	a.handle(mux, "/api/prices", a.handlePrices)
	a.handle(mux, "/api/replay", a.handleReplay)
	a.handle(mux, "/api/metrics", a.handleSystemMetrics)

	a.handle(mux, "/api/alerts", a.handleAlerts)
	a.handle(mux, "/api/notifications/test", a.handleNotificationTest)
	a.handle(mux, "/api/config", a.handleCredentials)
	a.handle(mux, "/api/balance", a.handleBalance)
	a.handle(mux, "/api/orders", a.handleOrders)
	a.handle(mux, "/api/paper/orders", a.handlePaperOrders)
	a.handle(mux, "/api/paper/balance", a.handlePaperBalance)
	a.handle(mux, "/api/paper/reset", a.handlePaperReset)
	a.handle(mux, "/api/transactions", a.handleTransactions)
	a.handle(mux, "/api/analysis", a.handleAnalysis)

	mux.Handle("/metrics", promhttp.Handler())
	if a.Health != nil {
		mux.HandleFunc("/healthz", a.Health.ServeHTTP)
	}
	return mux
}

// handle wraps h with CORS, trace id propagation, panic recovery and
// request metrics.
func (a *API) handle(mux *http.ServeMux, route string, h http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		SetCORS(w)

		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = logger.GenerateTraceID()
		}
		w.Header().Set("X-Trace-Id", traceID)
		r = r.WithContext(logger.WithTraceID(r.Context(), traceID))

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				a.log.Error("handler panic", append(logger.LogWithTrace(r.Context()), "route", route, "panic", p)...)
				writeError(rec, http.StatusInternalServerError, "internal error")
			}
			if a.Metrics != nil {
				a.Metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
				a.Metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			}
		}()

		if r.Method == http.MethodOptions {
			rec.WriteHeader(http.StatusNoContent)
			return
		}
		h(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// fail logs err with the request's trace id and answers with the status
// that matches it. Client mistakes keep their message; anything else is
// reported as msg.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error(msg, append(logger.LogWithTrace(r.Context()), "path", r.URL.Path, "error", err)...)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, clientMessage(err))
}

func statusFor(err error) int {
	var apiErr *binance.APIError
	switch {
	case errors.Is(err, sqlstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, binance.ErrInvalidOrder),
		errors.Is(err, trading.ErrUnknownSymbol),
		errors.Is(err, trading.ErrNoCredentials),
		errors.Is(err, trading.ErrInvalidCredentials),
		errors.Is(err, sqlstore.ErrInsufficientBalance):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		return http.StatusBadRequest
	case errors.Is(err, trading.ErrNoPrice):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage prefers the exchange's own message for rejected requests.
func clientMessage(err error) string {
	var apiErr *binance.APIError
	if errors.As(err, &apiErr) && apiErr.Msg != "" {
		return apiErr.Msg
	}
	return err.Error()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
