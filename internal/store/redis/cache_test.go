package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/breaker"
	"cryptodash/internal/model"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

type countingSource struct {
	calls   int
	candles []model.Candle
	tickers []model.Ticker
	err     error
}

func (s *countingSource) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	s.calls++
	return s.candles, s.err
}

func (s *countingSource) Tickers(ctx context.Context) ([]model.Ticker, error) {
	s.calls++
	return s.tickers, s.err
}

func TestCache_ReadThrough(t *testing.T) {
	kv := newMemKV()
	src := &countingSource{candles: []model.Candle{{Time: 60, Close: 1.5}}}
	c := NewCache(kv, src, nil, CacheConfig{CandleTTL: time.Minute})
	ctx := context.Background()

	first, err := c.Candles(ctx, "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	second, err := c.Candles(ctx, "BTCUSDT", "1h", 200)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)
	assert.Contains(t, kv.data, "cryptodash:candles:BTCUSDT:1h:200")
	assert.Equal(t, time.Minute, kv.ttls["cryptodash:candles:BTCUSDT:1h:200"])

	// A different limit is a different key.
	_, err = c.Candles(ctx, "BTCUSDT", "1h", 100)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCache_Tickers(t *testing.T) {
	kv := newMemKV()
	src := &countingSource{tickers: []model.Ticker{{Symbol: "BTCUSDT", Price: 1}}}
	c := NewCache(kv, nil, src, CacheConfig{})

	for i := 0; i < 3; i++ {
		tickers, err := c.Tickers(context.Background())
		require.NoError(t, err)
		assert.Len(t, tickers, 1)
	}
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, defaultTickersTTL, kv.ttls["cryptodash:tickers"])
}

func TestCache_RedisDownIsBypassed(t *testing.T) {
	kv := newMemKV()
	kv.err = errors.New("connection refused")
	src := &countingSource{candles: []model.Candle{{Time: 60}}}
	cb := breaker.New("redis-cache", 2, time.Hour)
	c := NewCache(kv, src, nil, CacheConfig{Breaker: cb})

	for i := 0; i < 4; i++ {
		candles, err := c.Candles(context.Background(), "ETHUSDT", "4h", 10)
		require.NoError(t, err)
		assert.Len(t, candles, 1)
	}
	assert.Equal(t, 4, src.calls)
	assert.Equal(t, breaker.StateOpen, cb.CurrentState())
}

func TestCache_SourceErrorNotCached(t *testing.T) {
	kv := newMemKV()
	src := &countingSource{err: errors.New("upstream down")}
	c := NewCache(kv, src, nil, CacheConfig{})

	_, err := c.Candles(context.Background(), "BTCUSDT", "1h", 10)
	require.Error(t, err)
	assert.Empty(t, kv.data)
}

func TestCache_CorruptEntryRefetched(t *testing.T) {
	kv := newMemKV()
	kv.data["cryptodash:candles:BTCUSDT:1h:10"] = []byte("not json")
	src := &countingSource{candles: []model.Candle{{Time: 60}}}
	c := NewCache(kv, src, nil, CacheConfig{})

	candles, err := c.Candles(context.Background(), "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Equal(t, 1, src.calls)
}

type namedSource struct{ countingSource }

func (s *namedSource) CandlesFrom(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, string, error) {
	c, err := s.Candles(ctx, symbol, interval, limit)
	return c, "coingecko", err
}

func TestCache_ReportsSource(t *testing.T) {
	kv := newMemKV()
	src := &namedSource{countingSource{candles: []model.Candle{{Time: 60}}}}
	c := NewCache(kv, src, nil, CacheConfig{})
	ctx := context.Background()

	_, source, err := c.CandlesFrom(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	assert.Equal(t, "coingecko", source)

	_, source, err = c.CandlesFrom(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)

	plain := NewCache(newMemKV(), nil, &countingSource{tickers: []model.Ticker{{Symbol: "BTCUSDT"}}}, CacheConfig{})
	_, source, err = plain.TickersFrom(ctx)
	require.NoError(t, err)
	assert.Equal(t, "upstream", source)
}

func TestIndicatorChannel_RoundTrip(t *testing.T) {
	ch := IndicatorChannel("1h", "BTCUSDT")
	assert.Equal(t, "pub:ind:1h:BTCUSDT", ch)
	assert.Equal(t, "ind:latest:1h:BTCUSDT", LatestKey("1h", "BTCUSDT"))

	iv, sym, ok := ParseIndicatorChannel(ch)
	require.True(t, ok)
	assert.Equal(t, "1h", iv)
	assert.Equal(t, "BTCUSDT", sym)

	for _, bad := range []string{"pub:tick:1h:BTC", "pub:ind:1h", "pub:ind::BTC", "pub:ind:1h:"} {
		_, _, ok := ParseIndicatorChannel(bad)
		assert.False(t, ok, bad)
	}
}
