package model

// IndicatorPoint is one SMA/EMA/RSI sample aligned to the candle at which
// its window ends.
type IndicatorPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// MACDPoint is one MACD sample. Histogram is always MACD - Signal.
type MACDPoint struct {
	Time      int64   `json:"time"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// IndicatorBundle aggregates the chart series plus "current value"
// snapshots. A nil snapshot means the series is empty.
type IndicatorBundle struct {
	SMA20 []IndicatorPoint `json:"sma20"`
	SMA50 []IndicatorPoint `json:"sma50"`
	RSI   []IndicatorPoint `json:"rsi"`
	MACD  []MACDPoint      `json:"macd"`

	// SMA holds configured periods other than 20 and 50, keyed by period.
	SMA map[int][]IndicatorPoint `json:"sma,omitempty"`

	CurrentRSI   *float64   `json:"currentRSI"`
	CurrentMACD  *MACDPoint `json:"currentMACD"`
	CurrentSMA20 *float64   `json:"currentSMA20"`
	CurrentSMA50 *float64   `json:"currentSMA50"`
}

// Stats summarises the last candle and the trailing window.
type Stats struct {
	CurrentPrice  float64 `json:"currentPrice"`
	PreviousClose float64 `json:"previousClose"`
	ChangePercent float64 `json:"changePercent"`
	High24h       float64 `json:"high24h"`
	Low24h        float64 `json:"low24h"`
	AvgVolume     float64 `json:"avgVolume"`
}

// IndicatorResult is the full output of one engine run.
type IndicatorResult struct {
	Indicators IndicatorBundle `json:"indicators"`
	Stats      Stats           `json:"stats"`
}

// IndicatorUpdate is the message published for one symbol and interval
// after each engine run.
type IndicatorUpdate struct {
	Symbol     string  `json:"symbol"`
	Interval   string  `json:"interval"`
	Source     string  `json:"source"`
	Candle     *Candle `json:"candle,omitempty"` // latest candle
	ComputedAt int64   `json:"computedAt"`       // unix millis
	IndicatorResult
}
