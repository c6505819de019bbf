package llm

import (
	"context"
	"fmt"
	"strings"

	"cryptodash/internal/model"
)

const analystPrompt = `You are a concise crypto market analyst. Using only the indicator data provided, ` +
	`describe trend, momentum and notable levels in at most five short paragraphs. ` +
	`Do not give financial advice or price targets.`

// Analyst writes commentary on an indicator result.
type Analyst struct {
	completer   Completer
	temperature float64
}

// NewAnalyst wraps a Completer.
func NewAnalyst(c Completer, temperature float64) *Analyst {
	return &Analyst{completer: c, temperature: temperature}
}

// Analyze asks the model to comment on symbol's indicators. question is an
// optional follow-up from the user.
func (a *Analyst) Analyze(ctx context.Context, symbol, interval string, res model.IndicatorResult, question string) (string, error) {
	msgs := []Message{
		{Role: RoleSystem, Content: analystPrompt},
		{Role: RoleUser, Content: Summarize(symbol, interval, res)},
	}
	if q := strings.TrimSpace(question); q != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: q})
	}
	return a.completer.Complete(ctx, msgs, a.temperature)
}

// Summarize renders the latest indicator values as plain text.
func Summarize(symbol, interval string, res model.IndicatorResult) string {
	var b strings.Builder
	s := res.Stats
	ind := res.Indicators

	fmt.Fprintf(&b, "Symbol: %s\nInterval: %s\n", symbol, interval)
	fmt.Fprintf(&b, "Price: %s (previous close %s, change %.2f%%)\n",
		num(s.CurrentPrice), num(s.PreviousClose), s.ChangePercent)
	fmt.Fprintf(&b, "Window high/low: %s / %s, average volume %s\n", num(s.High24h), num(s.Low24h), num(s.AvgVolume))

	fmt.Fprintf(&b, "SMA20: %s\nSMA50: %s\n", optional(ind.CurrentSMA20), optional(ind.CurrentSMA50))
	fmt.Fprintf(&b, "RSI: %s\n", optional(ind.CurrentRSI))
	if m := ind.CurrentMACD; m != nil {
		fmt.Fprintf(&b, "MACD: %s, signal %s, histogram %s\n", num(m.MACD), num(m.Signal), num(m.Histogram))
	} else {
		b.WriteString("MACD: n/a\n")
	}
	return b.String()
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return num(*v)
}

func num(v float64) string {
	if v != 0 && v < 1 && v > -1 {
		return fmt.Sprintf("%.6f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
