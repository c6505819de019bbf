package indicator

// Conventional MACD periods.
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDValue is one MACD sample before it is attached to a candle time.
type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD returns the Moving Average Convergence Divergence series.
//
// The MACD line pairs each slow EMA value with the fast EMA value ending on
// the same close, the signal line is an EMA of the MACD line, and the result
// follows the signal line's length, aligned to the tail of the MACD line.
// Fewer than slow closes yields an empty result.
func MACD(closes []float64, fast, slow, signal int) []MACDValue {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast > slow || len(closes) < slow {
		return []MACDValue{}
	}

	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	offset := slow - fast
	if len(emaFast) < len(emaSlow)+offset {
		return []MACDValue{}
	}

	macdLine := make([]float64, len(emaSlow))
	for i := range emaSlow {
		macdLine[i] = emaFast[i+offset] - emaSlow[i]
	}

	signalLine := EMA(macdLine, signal)
	start := len(macdLine) - len(signalLine)

	out := make([]MACDValue, len(signalLine))
	for i, s := range signalLine {
		m := macdLine[i+start]
		out[i] = MACDValue{MACD: m, Signal: s, Histogram: m - s}
	}
	return out
}
