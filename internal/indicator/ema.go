package indicator

// EMA returns the exponential moving average series of values.
//
// The seed is the mean of the first min(period, len(values)) values and the
// multiplier is 2/(period+1). With at least period values the result has
// len(values)-period+1 elements; with fewer it holds just the seed. Unlike
// SMA it is never empty for non-empty input, which MACD relies on when it
// smooths a short MACD line.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return []float64{}
	}

	n := min(period, len(values))
	out := make([]float64, 1, max(1, len(values)-period+1))
	out[0] = sum(values[:n]) / float64(n)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		prev := out[len(out)-1]
		out = append(out, (values[i]-prev)*multiplier+prev)
	}
	return out
}
