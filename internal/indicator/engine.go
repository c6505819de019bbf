package indicator

import (
	"cryptodash/internal/model"
)

// Periods the bundle always reports under its fixed sma20/sma50 keys.
const (
	shortSMAPeriod = 20
	longSMAPeriod  = 50
)

// Compute runs the full indicator pipeline over candles.
// It never fails: short input degrades to empty series, nil snapshots and
// zero stats.
func Compute(candles []model.Candle, cfg Config) model.IndicatorResult {
	return model.IndicatorResult{
		Indicators: BuildBundle(candles, cfg),
		Stats:      ComputeStats(candles, cfg.StatsWindow),
	}
}

// BuildBundle computes every configured series and re-attaches candle times.
func BuildBundle(candles []model.Candle, cfg Config) model.IndicatorBundle {
	closes := model.Closes(candles)

	b := model.IndicatorBundle{
		SMA20: AlignSeries(candles, SMA(closes, shortSMAPeriod)),
		SMA50: AlignSeries(candles, SMA(closes, longSMAPeriod)),
		RSI:   AlignSeries(candles, RSI(closes, cfg.RSIPeriod)),
		MACD:  AlignMACD(candles, MACD(closes, cfg.MACD.Fast, cfg.MACD.Slow, cfg.MACD.Signal)),
	}

	for _, p := range cfg.SMAPeriods {
		if p == shortSMAPeriod || p == longSMAPeriod {
			continue
		}
		if b.SMA == nil {
			b.SMA = make(map[int][]model.IndicatorPoint)
		}
		b.SMA[p] = AlignSeries(candles, SMA(closes, p))
	}

	b.CurrentSMA20 = lastValue(b.SMA20)
	b.CurrentSMA50 = lastValue(b.SMA50)
	b.CurrentRSI = lastValue(b.RSI)
	if n := len(b.MACD); n > 0 {
		last := b.MACD[n-1]
		b.CurrentMACD = &last
	}
	return b
}

// AlignSeries pairs each value with the time of the candle at which its
// window ends. Point i maps to candle (len(candles)-len(values))+i.
func AlignSeries(candles []model.Candle, values []float64) []model.IndicatorPoint {
	offset := len(candles) - len(values)
	if offset < 0 {
		return []model.IndicatorPoint{}
	}
	out := make([]model.IndicatorPoint, len(values))
	for i, v := range values {
		out[i] = model.IndicatorPoint{Time: candles[offset+i].Time, Value: v}
	}
	return out
}

// AlignMACD is AlignSeries for MACD samples.
func AlignMACD(candles []model.Candle, values []MACDValue) []model.MACDPoint {
	offset := len(candles) - len(values)
	if offset < 0 {
		return []model.MACDPoint{}
	}
	out := make([]model.MACDPoint, len(values))
	for i, v := range values {
		out[i] = model.MACDPoint{
			Time:      candles[offset+i].Time,
			MACD:      v.MACD,
			Signal:    v.Signal,
			Histogram: v.Histogram,
		}
	}
	return out
}

// ComputeStats summarises the last two closes and the trailing window of
// min(window, len(candles)) candles. A non-positive window uses
// DefaultStatsWindow.
func ComputeStats(candles []model.Candle, window int) model.Stats {
	var s model.Stats
	n := len(candles)
	if n == 0 {
		return s
	}
	if window <= 0 {
		window = DefaultStatsWindow
	}

	s.CurrentPrice = candles[n-1].Close
	if n >= 2 {
		s.PreviousClose = candles[n-2].Close
	}
	if s.PreviousClose != 0 {
		s.ChangePercent = (s.CurrentPrice - s.PreviousClose) / s.PreviousClose * 100
	}

	trailing := candles[n-min(window, n):]
	s.High24h = trailing[0].High
	s.Low24h = trailing[0].Low
	volume := 0.0
	for _, c := range trailing {
		s.High24h = max(s.High24h, c.High)
		s.Low24h = min(s.Low24h, c.Low)
		volume += c.Volume
	}
	s.AvgVolume = volume / float64(len(trailing))
	return s
}

func lastValue(points []model.IndicatorPoint) *float64 {
	if len(points) == 0 {
		return nil
	}
	v := points[len(points)-1].Value
	return &v
}
