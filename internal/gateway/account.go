package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cryptodash/internal/alerts"
	"cryptodash/internal/indicator"
	"cryptodash/internal/marketdata"
	"cryptodash/internal/model"
	"cryptodash/internal/notification"
	"cryptodash/internal/trading"
)

const noCredentialsMsg = "No API credentials configured. Please add your Binance API keys in Settings."

// GET/POST/DELETE /api/alerts
func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := a.Alerts.ListActiveAlerts(r.Context())
		if err != nil {
			a.fail(w, r, err, "Error fetching alerts")
			return
		}
		if list == nil {
			list = []model.PriceAlert{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "alerts": list})

	case http.MethodPost:
		var req AlertRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Symbol = normalizeSymbol(req.Symbol)
		req.Condition = strings.ToLower(strings.TrimSpace(req.Condition))
		if req.Symbol == "" || req.TargetPrice <= 0 || req.Condition == "" {
			writeError(w, http.StatusBadRequest, "Missing required fields")
			return
		}
		if !alerts.ValidCondition(req.Condition) {
			writeError(w, http.StatusBadRequest, `condition must be "above" or "below"`)
			return
		}
		if req.Message == "" {
			req.Message = fmt.Sprintf("%s %s $%s", req.Symbol, req.Condition, strconv.FormatFloat(req.TargetPrice, 'f', -1, 64))
		}
		alert, err := a.Alerts.CreateAlert(r.Context(), model.PriceAlert{
			Symbol:      req.Symbol,
			TargetPrice: req.TargetPrice,
			Condition:   req.Condition,
			Message:     req.Message,
		})
		if err != nil {
			a.fail(w, r, err, "Error creating alert")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "alert": alert})

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "Alert ID required")
			return
		}
		if err := a.Alerts.DeleteAlert(r.Context(), id); err != nil {
			a.fail(w, r, err, "Error deleting alert")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		methodNotAllowed(w)
	}
}

// POST /api/notifications/test sends a test message and reports the
// outcome per channel.
func (a *API) handleNotificationTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if a.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not configured")
		return
	}
	var req NotificationTestRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target := a.Notifier
	if ch := strings.ToLower(strings.TrimSpace(req.Channel)); ch != "" {
		only, ok := a.Notifier.Only(ch)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("notification channel %q is not configured (configured: %s)",
				ch, strings.Join(a.Notifier.Channels(), ", ")))
			return
		}
		target = only
	}

	results := target.SendAll(r.Context(), notification.Alert{
		Level:   notification.AlertInfo,
		Title:   "Test notification",
		Message: "Notifications are working.",
	})
	success := true
	for _, res := range results {
		success = success && res.Success
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": success, "results": results})
}

func (a *API) liveEnabled(w http.ResponseWriter) bool {
	if a.Live == nil {
		writeError(w, http.StatusServiceUnavailable, "live trading is disabled")
		return false
	}
	return true
}

// GET/POST/DELETE /api/config manages the Binance credentials. Reads only
// report which keys are present.
func (a *API) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if !a.liveEnabled(w) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		status, err := a.Live.Status(r.Context())
		if err != nil {
			a.fail(w, r, err, "Error getting configuration")
			return
		}
		writeJSON(w, http.StatusOK, status)

	case http.MethodPost:
		var req CredentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.APIKey == "" || req.APISecret == "" {
			writeError(w, http.StatusBadRequest, "API Key and Secret are required")
			return
		}
		testnet := req.Testnet == nil || *req.Testnet
		err := a.Live.SaveCredentials(r.Context(), req.APIKey, req.APISecret, testnet)
		if errors.Is(err, trading.ErrInvalidCredentials) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   "Invalid API credentials",
				"details": clientMessage(err),
			})
			return
		}
		if err != nil {
			a.fail(w, r, err, "Error saving configuration")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "API credentials saved successfully",
			"testnet": testnet,
		})

	case http.MethodDelete:
		if err := a.Live.DeleteCredentials(r.Context()); err != nil {
			a.fail(w, r, err, "Error removing configuration")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "API credentials removed"})

	default:
		methodNotAllowed(w)
	}
}

// GET /api/balance values the exchange account. Failures are reported in
// the body with success=false so the dashboard can render them inline.
func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if !a.liveEnabled(w) {
		return
	}
	report, testnet, err := a.Live.Balances(r.Context())
	if err != nil {
		resp := BalanceResponse{Balances: []model.Balance{}, Testnet: testnet}
		if errors.Is(err, trading.ErrNoCredentials) {
			resp.Error = noCredentialsMsg
		} else {
			resp.IsReal = !testnet
			resp.Error = clientMessage(err)
			a.log.Warn("balance fetch failed", "error", err)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(report, !testnet, testnet))
}

// GET/POST/DELETE /api/orders trades on the exchange.
func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if !a.liveEnabled(w) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		orders, err := a.Live.OpenOrders(r.Context(), normalizeSymbol(r.URL.Query().Get("symbol")))
		if err != nil {
			msg := clientMessage(err)
			if errors.Is(err, trading.ErrNoCredentials) {
				msg = "No API credentials"
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": msg, "orders": []model.Order{}})
			return
		}
		if orders == nil {
			orders = []model.Order{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})

	case http.MethodPost:
		var req model.OrderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Symbol = normalizeSymbol(req.Symbol)
		req.Side = strings.ToUpper(req.Side)
		req.Type = strings.ToUpper(req.Type)
		if req.Symbol == "" || req.Side == "" || req.Type == "" || req.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "Missing required fields: symbol, side, type, quantity")
			return
		}
		ack, err := a.Live.Place(r.Context(), req)
		if err != nil {
			a.fail(w, r, err, "Error creating order")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": ack})

	case http.MethodDelete:
		q := r.URL.Query()
		symbol := normalizeSymbol(q.Get("symbol"))
		orderID, err := strconv.ParseInt(q.Get("orderId"), 10, 64)
		if symbol == "" || err != nil {
			writeError(w, http.StatusBadRequest, "symbol and orderId required")
			return
		}
		if err := a.Live.Cancel(r.Context(), symbol, orderID); err != nil {
			a.fail(w, r, err, "Error canceling order")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		methodNotAllowed(w)
	}
}

// POST /api/paper/orders fills a simulated market order.
func (a *API) handlePaperOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req model.OrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Symbol = normalizeSymbol(req.Symbol)
	req.Side = strings.ToUpper(req.Side)
	req.Type = strings.ToUpper(req.Type)
	fill, err := a.Paper.Place(r.Context(), req)
	if err != nil {
		a.fail(w, r, err, "Error creating paper order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": fill})
}

// GET /api/paper/balance
func (a *API) handlePaperBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	report, err := a.Paper.Balances(r.Context())
	if err != nil {
		a.fail(w, r, err, "Error fetching paper balance")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse(report, false, false))
}

// POST /api/paper/reset
func (a *API) handlePaperReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := a.Paper.Reset(r.Context()); err != nil {
		a.fail(w, r, err, "Error resetting paper account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GET /api/transactions?limit=50
func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	txs, err := a.Ledger.ListTransactions(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err, "Error fetching transactions")
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "transactions": txs})
}

// POST /api/analysis asks the configured model to comment on a pair's
// current indicators.
func (a *API) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if a.Analyst == nil {
		writeError(w, http.StatusServiceUnavailable, "market analysis is not configured")
		return
	}
	var req AnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := normalizeSymbol(req.Symbol)
	if symbol == "" {
		symbol = defaultSymbol
	}
	interval := req.Interval
	if interval == "" {
		interval = defaultInterval
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultCandleLimit
	}
	limit = min(limit, maxCandleLimit)
	if !marketdata.ValidInterval(interval) {
		writeError(w, http.StatusBadRequest, "Invalid interval. Valid intervals: "+strings.Join(marketdata.Intervals(), ", "))
		return
	}

	candles, source, err := a.Market.CandlesFrom(r.Context(), symbol, interval, limit)
	if err != nil {
		a.fail(w, r, err, "Error fetching candlestick data")
		return
	}
	res := indicator.Compute(candles, a.Indicators.Get())
	text, err := a.Analyst.Analyze(r.Context(), symbol, interval, res, req.Question)
	if err != nil {
		a.log.Error("analysis failed", "symbol", symbol, "error", err)
		writeError(w, http.StatusBadGateway, "Error generating analysis")
		return
	}
	writeJSON(w, http.StatusOK, AnalysisResponse{
		Success:  true,
		Symbol:   symbol,
		Interval: interval,
		Source:   source,
		Analysis: text,
	})
}
