package model

// Candle is one fixed-size bucket of trade activity for a symbol.
// Time is the bucket open in unix seconds. Sequences are ordered
// oldest to newest; gaps are neither validated nor repaired.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Closes extracts the close-price sequence without touching the input.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
