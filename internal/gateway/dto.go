package gateway

import (
	"cryptodash/internal/model"
	"cryptodash/internal/trading"
)

// CandlesResponse is the REST response for /api/candles.
type CandlesResponse struct {
	Success    bool                  `json:"success"`
	Symbol     string                `json:"symbol"`
	Interval   string                `json:"interval"`
	Source     string                `json:"source"`
	Candles    []model.Candle        `json:"candles"`
	Indicators model.IndicatorBundle `json:"indicators"`
	Stats      model.Stats           `json:"stats"`
	Timestamp  string                `json:"timestamp"`
}

// IndicatorsRequest is the body of POST /api/indicators.
type IndicatorsRequest struct {
	Candles []model.Candle    `json:"candles"`
	Config  *IndicatorsConfig `json:"config,omitempty"`
}

// IndicatorsConfig mirrors indicator.Config for request bodies; zero
// fields keep the active value.
type IndicatorsConfig struct {
	SMAPeriods  []int `json:"smaPeriods"`
	RSIPeriod   int   `json:"rsiPeriod"`
	MACDFast    int   `json:"macdFast"`
	MACDSlow    int   `json:"macdSlow"`
	MACDSignal  int   `json:"macdSignal"`
	StatsWindow int   `json:"statsWindow"`
}

// PricesResponse is the REST response for /api/prices.
type PricesResponse struct {
	Success   bool           `json:"success"`
	Prices    []model.Ticker `json:"prices"`
	Forex     []model.Ticker `json:"forex"`
	Timestamp string         `json:"timestamp,omitempty"`
	Total     int            `json:"total"`
	Source    string         `json:"source,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// AlertRequest is the body of POST /api/alerts.
type AlertRequest struct {
	Symbol      string  `json:"symbol"`
	TargetPrice float64 `json:"targetPrice"`
	Condition   string  `json:"condition"`
	Message     string  `json:"message"`
}

// CredentialsRequest is the body of POST /api/config.
// NotificationTestRequest picks one channel; empty tests them all.
type NotificationTestRequest struct {
	Channel string `json:"channel"`
}

type CredentialsRequest struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
	Testnet   *bool  `json:"testnet"` // default true
}

// BalanceResponse is the REST response for the balance endpoints.
type BalanceResponse struct {
	Success  bool            `json:"success"`
	Balances []model.Balance `json:"balances"`
	TotalUSD float64         `json:"totalUSD"`
	IsReal   bool            `json:"isReal"`
	Testnet  bool            `json:"testnet"`
	CanTrade bool            `json:"canTrade"`
	Error    string          `json:"error,omitempty"`
}

func balanceResponse(r trading.BalanceReport, real, testnet bool) BalanceResponse {
	balances := r.Balances
	if balances == nil {
		balances = []model.Balance{}
	}
	return BalanceResponse{
		Success:  true,
		Balances: balances,
		TotalUSD: r.TotalUSD,
		IsReal:   real,
		Testnet:  testnet,
		CanTrade: true,
	}
}

// AnalysisRequest is the body of POST /api/analysis.
type AnalysisRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Limit    int    `json:"limit"`
	Question string `json:"question"`
}

// AnalysisResponse is the REST response for /api/analysis.
type AnalysisResponse struct {
	Success  bool   `json:"success"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Source   string `json:"source"`
	Analysis string `json:"analysis"`
}
