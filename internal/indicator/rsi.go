package indicator

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// RSI returns the Relative Strength Index series of closes.
//
// Gains and losses are averaged with a plain rolling mean over the last
// period deltas, not Wilder's smoothing. A window whose average loss is zero
// reports 100, including a perfectly flat window. The loop bound includes
// the final window, giving len(closes)-period values.
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) <= period {
		return []float64{}
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}

	p := float64(period)
	out := make([]float64, 0, len(gains)-period+1)
	for i := period; i <= len(gains); i++ {
		avgGain := sum(gains[i-period:i]) / p
		avgLoss := sum(losses[i-period:i]) / p
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
