// Package marketdata defines the candle and ticker collaborators that feed
// the indicator engine, and the fallback chain that picks between exchange
// upstreams.
package marketdata

import (
	"errors"
	"sort"
	"time"

	"cryptodash/internal/model"
)

// ErrEmpty is returned by a source that answered but had nothing to offer.
var ErrEmpty = errors.New("marketdata: empty result")

// intervals is the Binance kline interval set.
var intervals = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M"}

var validIntervals = func() map[string]bool {
	m := make(map[string]bool, len(intervals))
	for _, iv := range intervals {
		m[iv] = true
	}
	return m
}()

// ValidInterval reports whether s is a supported kline interval.
func ValidInterval(s string) bool { return validIntervals[s] }

// IntervalDuration returns the length of one candle for a valid interval.
// A month is counted as 30 days.
func IntervalDuration(s string) (time.Duration, bool) {
	if !ValidInterval(s) {
		return 0, false
	}
	unit := map[byte]time.Duration{'m': time.Minute, 'h': time.Hour, 'd': 24 * time.Hour, 'w': 7 * 24 * time.Hour, 'M': 30 * 24 * time.Hour}
	n := 0
	for _, ch := range s[:len(s)-1] {
		n = n*10 + int(ch-'0')
	}
	return time.Duration(n) * unit[s[len(s)-1]], true
}

// Intervals returns the supported kline intervals, shortest first.
func Intervals() []string { return append([]string(nil), intervals...) }

// coinGeckoIDs maps each tracked USDT pair to its CoinGecko coin id.
var coinGeckoIDs = map[string]string{
	"BTCUSDT":   "bitcoin",
	"ETHUSDT":   "ethereum",
	"BNBUSDT":   "binancecoin",
	"XRPUSDT":   "ripple",
	"ADAUSDT":   "cardano",
	"DOGEUSDT":  "dogecoin",
	"SOLUSDT":   "solana",
	"DOTUSDT":   "polkadot",
	"MATICUSDT": "matic-network",
	"LTCUSDT":   "litecoin",
	"SHIBUSDT":  "shiba-inu",
	"TRXUSDT":   "tron",
	"AVAXUSDT":  "avalanche-2",
	"LINKUSDT":  "chainlink",
	"ATOMUSDT":  "cosmos",
	"UNIUSDT":   "uniswap",
	"ETCUSDT":   "ethereum-classic",
	"XMRUSDT":   "monero",
	"BCHUSDT":   "bitcoin-cash",
	"XLMUSDT":   "stellar",
	"NEARUSDT":  "near",
	"ALGOUSDT":  "algorand",
	"VETUSDT":   "vechain",
	"FILUSDT":   "filecoin",
	"ICPUSDT":   "internet-computer",
	"APEUSDT":   "apecoin",
	"SANDUSDT":  "the-sandbox",
	"MANAUSDT":  "decentraland",
	"AXSUSDT":   "axie-infinity",
	"THETAUSDT": "theta-network",
	"FTMUSDT":   "fantom",
	"GRTUSDT":   "the-graph",
	"ENJUSDT":   "enjincoin",
	"CHZUSDT":   "chiliz",
	"COMPUSDT":  "compound-governance-token",
	"SUSHIUSDT": "sushi",
	"YFIUSDT":   "yearn-finance",
	"SNXUSDT":   "havven",
	"AAVEUSDT":  "aave",
	"MKRUSDT":   "maker",
	"CAKEUSDT":  "pancakeswap-token",
	"CRVUSDT":   "curve-dao-token",
	"1INCHUSDT": "1inch",
	"KAVAUSDT":  "kava",
	"RUNEUSDT":  "thorchain",
	"ZILUSDT":   "zilliqa",
	"EOSUSDT":   "eos",
	"XTZUSDT":   "tezos",
	"FLOWUSDT":  "flow",
	"EGLDUSDT":  "elrond-erd-2",
}

// TrackedSymbols returns the dashboard's watchlist in sorted order.
func TrackedSymbols() []string {
	out := make([]string, 0, len(coinGeckoIDs))
	for s := range coinGeckoIDs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsTracked reports whether symbol is on the watchlist.
func IsTracked(symbol string) bool {
	_, ok := coinGeckoIDs[symbol]
	return ok
}

// CoinGeckoID returns the CoinGecko coin id for a tracked symbol.
func CoinGeckoID(symbol string) (string, bool) {
	id, ok := coinGeckoIDs[symbol]
	return id, ok
}

// SymbolForCoinGeckoID is the reverse of CoinGeckoID.
func SymbolForCoinGeckoID(id string) (string, bool) {
	for s, cid := range coinGeckoIDs {
		if cid == id {
			return s, true
		}
	}
	return "", false
}

// SortByQuoteVolume orders tickers by quote volume, highest first.
func SortByQuoteVolume(tickers []model.Ticker) {
	sort.SliceStable(tickers, func(i, j int) bool {
		return tickers[i].QuoteVolume > tickers[j].QuoteVolume
	})
}
