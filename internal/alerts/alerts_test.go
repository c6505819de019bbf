package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash/internal/metrics"
	"cryptodash/internal/model"
	"cryptodash/internal/notification"
)

type memStore struct {
	mu     sync.Mutex
	alerts []model.PriceAlert
}

func (s *memStore) CreateAlert(ctx context.Context, a model.PriceAlert) (model.PriceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.IsActive = true
	s.alerts = append(s.alerts, a)
	return a, nil
}

func (s *memStore) ListActiveAlerts(ctx context.Context) ([]model.PriceAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PriceAlert
	for _, a := range s.alerts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) DeleteAlert(ctx context.Context, id string) error { return nil }

func (s *memStore) MarkTriggered(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].IsActive = false
			s.alerts[i].Triggered = true
		}
	}
	return nil
}

type staticTickers struct {
	tickers []model.Ticker
	err     error
}

func (s staticTickers) Tickers(ctx context.Context) ([]model.Ticker, error) { return s.tickers, s.err }

type recordingNotifier struct{ sent []notification.Alert }

func (r *recordingNotifier) Send(ctx context.Context, a notification.Alert) error {
	r.sent = append(r.sent, a)
	return nil
}

func TestEvaluate(t *testing.T) {
	above := model.PriceAlert{TargetPrice: 100, Condition: model.ConditionAbove}
	below := model.PriceAlert{TargetPrice: 100, Condition: model.ConditionBelow}

	assert.True(t, Evaluate(above, 100))
	assert.True(t, Evaluate(above, 101))
	assert.False(t, Evaluate(above, 99.99))

	assert.True(t, Evaluate(below, 100))
	assert.True(t, Evaluate(below, 50))
	assert.False(t, Evaluate(below, 100.01))

	assert.False(t, Evaluate(model.PriceAlert{TargetPrice: 1, Condition: "sideways"}, 1))
	assert.True(t, Evaluate(model.PriceAlert{TargetPrice: 1, Condition: "ABOVE"}, 2))
}

func TestValidCondition(t *testing.T) {
	assert.True(t, ValidCondition("above"))
	assert.True(t, ValidCondition("Below"))
	assert.False(t, ValidCondition(""))
}

func TestCheckFiresOnce(t *testing.T) {
	store := &memStore{alerts: []model.PriceAlert{
		{ID: "a1", Symbol: "BTCUSDT", TargetPrice: 60000, Condition: model.ConditionAbove, IsActive: true},
		{ID: "a2", Symbol: "ETHUSDT", TargetPrice: 1000, Condition: model.ConditionBelow, IsActive: true},
		{ID: "a3", Symbol: "DOGEUSDT", TargetPrice: 1, Condition: model.ConditionAbove, IsActive: true},
	}}
	tickers := staticTickers{tickers: []model.Ticker{
		{Symbol: "BTCUSDT", Price: 65000},
		{Symbol: "ETHUSDT", Price: 3000},
	}}
	n := &recordingNotifier{}
	m := metrics.NewMetrics(prometheus.NewRegistry())

	e := NewEvaluator(store, tickers, n, m, 0)
	fired, err := e.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "a1", fired[0].ID)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "BTCUSDT", n.sent[0].Symbol)
	assert.Contains(t, n.sent[0].Message, "above 60000.00")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTriggered))

	fired, err = e.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Len(t, n.sent, 1)
}

func TestCheckTickerError(t *testing.T) {
	store := &memStore{alerts: []model.PriceAlert{{ID: "a", Symbol: "BTCUSDT", TargetPrice: 1, Condition: "above", IsActive: true}}}
	e := NewEvaluator(store, staticTickers{err: errors.New("down")}, &recordingNotifier{}, nil, 0)
	_, err := e.Check(context.Background())
	assert.Error(t, err)
}

func TestCheckNoAlertsSkipsTickers(t *testing.T) {
	e := NewEvaluator(&memStore{}, staticTickers{err: errors.New("should not be called")}, &recordingNotifier{}, nil, 0)
	fired, err := e.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fired)
}
