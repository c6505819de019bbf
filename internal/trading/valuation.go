package trading

import (
	"sort"

	"cryptodash/internal/model"
)

// Holding is a raw asset balance before valuation.
type Holding struct {
	Asset  string
	Free   float64
	Locked float64
}

// BalanceReport is a set of valued balances with their USD total.
type BalanceReport struct {
	Balances []model.Balance `json:"balances"`
	TotalUSD float64         `json:"totalUSD"`
}

// Value prices holdings in USD. Stablecoins count 1:1, other assets use
// their USDT pair and, failing that, their BTC pair times BTCUSDT. Assets
// with no route are valued at 0. The result is sorted by USD value,
// largest first.
func Value(holdings []Holding, prices map[string]float64) BalanceReport {
	report := BalanceReport{Balances: make([]model.Balance, 0, len(holdings))}
	for _, h := range holdings {
		total := h.Free + h.Locked
		if total <= 0 {
			continue
		}
		b := model.Balance{
			Asset:    h.Asset,
			Free:     h.Free,
			Locked:   h.Locked,
			Total:    total,
			USDValue: total * usdPrice(h.Asset, prices),
		}
		report.Balances = append(report.Balances, b)
		report.TotalUSD += b.USDValue
	}
	sort.SliceStable(report.Balances, func(i, j int) bool {
		return report.Balances[i].USDValue > report.Balances[j].USDValue
	})
	return report
}

func usdPrice(asset string, prices map[string]float64) float64 {
	switch asset {
	case "USDT", "USD":
		return 1
	}
	if p, ok := prices[asset+"USDT"]; ok && p > 0 {
		return p
	}
	if p, ok := prices[asset+"BTC"]; ok && p > 0 {
		return p * prices["BTCUSDT"]
	}
	return 0
}
