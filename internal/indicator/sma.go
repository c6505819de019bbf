package indicator

// SMA returns the simple moving average series of values.
//
// Element i is the arithmetic mean of values[i : i+period], so the result
// has max(0, len(values)-period+1) elements. Each window is summed from
// scratch rather than with a running sum so the output matches a
// brute-force recomputation exactly.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return []float64{}
	}
	out := make([]float64, 0, len(values)-period+1)
	for i := period - 1; i < len(values); i++ {
		out = append(out, sum(values[i-period+1:i+1])/float64(period))
	}
	return out
}
