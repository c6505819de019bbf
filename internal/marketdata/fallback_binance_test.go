package marketdata_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/breaker"
	"cryptodash/internal/marketdata"
	"cryptodash/internal/marketdata/binance"
	"cryptodash/internal/model"
)

type zeroVolumeCandles struct{}

func (zeroVolumeCandles) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	return []model.Candle{{Time: 1, Close: 1}}, nil
}

func TestFallback_UnknownSymbolDoesNotTripBinance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
			return
		}
		w.Write([]byte(`[[1700000000000,"100","101","99","100.5","12.5",1700003599999,"0",1,"0","0","0"]]`))
	}))
	defer srv.Close()

	bn := binance.New(binance.Config{BaseURL: srv.URL, RPS: 1000})
	f := marketdata.NewFallback(marketdata.FallbackConfig{MaxFailures: 3},
		marketdata.Source{Name: "binance", Candles: bn},
		marketdata.Source{Name: "coingecko", Candles: zeroVolumeCandles{}},
	)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		f.CandlesFrom(ctx, "NOPEUSDT", "1h", 10)
	}
	state, ok := f.BreakerState("binance")
	require.True(t, ok)
	assert.Equal(t, breaker.StateClosed, state)

	candles, source, err := f.CandlesFrom(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	assert.Equal(t, "binance", source)
	require.Len(t, candles, 1)
	assert.Equal(t, 12.5, candles[0].Volume)
}

func TestFallback_ServerErrorsStillTripBinance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := marketdata.NewFallback(marketdata.FallbackConfig{MaxFailures: 3},
		marketdata.Source{Name: "binance", Candles: binance.New(binance.Config{BaseURL: srv.URL, RPS: 1000})},
		marketdata.Source{Name: "coingecko", Candles: zeroVolumeCandles{}},
	)

	for i := 0; i < 3; i++ {
		_, source, err := f.CandlesFrom(context.Background(), "BTCUSDT", "1h", 10)
		require.NoError(t, err)
		assert.Equal(t, "coingecko", source)
	}
	state, _ := f.BreakerState("binance")
	assert.Equal(t, breaker.StateOpen, state)
}
