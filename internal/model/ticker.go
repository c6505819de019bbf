package model

// Ticker is a 24h price summary for one symbol.
type Ticker struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Change24h   float64 `json:"change24h"`
	High24h     float64 `json:"high24h"`
	Low24h      float64 `json:"low24h"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quoteVolume"`
	Type        string  `json:"type"` // crypto
}
