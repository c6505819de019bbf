// Package indicator computes technical indicator series over candle data.
//
// Every function is pure: inputs are never mutated and each call allocates
// its own output, so request handlers may call them concurrently without
// coordination. Insufficient input degrades to empty series instead of
// failing.
package indicator

// sum adds up a window of values.
func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
