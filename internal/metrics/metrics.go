package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dashboard services.
type Metrics struct {
	// HTTP API
	HTTPRequests *prometheus.CounterVec   // labels: route, code
	HTTPDuration *prometheus.HistogramVec // labels: route

	// Upstream market data
	UpstreamFetchDur *prometheus.HistogramVec // labels: source, op
	UpstreamErrors   *prometheus.CounterVec   // labels: source, op
	FallbackServed   *prometheus.CounterVec   // labels: source
	CacheHits        *prometheus.CounterVec   // labels: kind
	CacheMisses      *prometheus.CounterVec   // labels: kind

	// Indicator engine
	IndicatorComputeDur prometheus.Histogram
	BundlesPublished    prometheus.Counter
	PublishErrors       prometheus.Counter
	PollErrors          prometheus.Counter

	// Alerts and notifications
	AlertsTriggered   prometheus.Counter
	NotificationsSent *prometheus.CounterVec // labels: channel, result

	// Trading
	OrdersPlaced *prometheus.CounterVec // labels: mode, side

	// WebSocket fan-out
	WSClients      prometheus.Gauge
	WSMessagesSent prometheus.Counter
	WSDrops        prometheus.Counter

	// Circuit breakers
	CircuitBreakerState *prometheus.GaugeVec   // labels: breaker; 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips *prometheus.CounterVec // labels: breaker
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cryptodash_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		UpstreamFetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cryptodash_upstream_fetch_duration_seconds",
			Help:    "Market data fetch latency by source and operation",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "op"}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_upstream_errors_total",
			Help: "Failed market data fetches by source and operation",
		}, []string{"source", "op"}),
		FallbackServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_fallback_served_total",
			Help: "Requests served by each source of a fallback chain",
		}, []string{"source"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_cache_hits_total",
			Help: "Redis cache hits",
		}, []string{"kind"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_cache_misses_total",
			Help: "Redis cache misses",
		}, []string{"kind"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptodash_indicator_compute_duration_seconds",
			Help:    "Indicator engine compute latency per candle set",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		BundlesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptodash_bundles_published_total",
			Help: "Indicator bundles published to Redis",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptodash_publish_errors_total",
			Help: "Indicator bundles that failed to publish",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptodash_poll_errors_total",
			Help: "Symbol/interval polls that failed to fetch candles",
		}),

		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptodash_alerts_triggered_total",
			Help: "Price alerts that fired",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_notifications_total",
			Help: "Notification deliveries by channel and result",
		}, []string{"channel", "result"}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_orders_total",
			Help: "Orders placed by mode (paper, live) and side",
		}, []string{"mode", "side"}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptodash_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptodash_ws_messages_sent_total",
			Help: "Messages queued to WebSocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptodash_ws_drops_total",
			Help: "Messages dropped because a client send buffer was full",
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cryptodash_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptodash_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"breaker"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.UpstreamFetchDur,
		m.UpstreamErrors,
		m.FallbackServed,
		m.CacheHits,
		m.CacheMisses,
		m.IndicatorComputeDur,
		m.BundlesPublished,
		m.PublishErrors,
		m.PollErrors,
		m.AlertsTriggered,
		m.NotificationsSent,
		m.OrdersPlaced,
		m.WSClients,
		m.WSMessagesSent,
		m.WSDrops,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	DBOK           bool      `json:"db_ok"`
	LastPollAt     time.Time `json:"last_poll_at"`
	Symbols        []string  `json:"symbols"`
	Intervals      []string  `json:"intervals"`

	// Liveness probe results
	RedisLatencyMs float64   `json:"redis_latency_ms"`
	DBLatencyMs    float64   `json:"db_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetDBOK(v bool) {
	h.mu.Lock()
	h.DBOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPoll(t time.Time) {
	h.mu.Lock()
	h.LastPollAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetWatchlist(symbols, intervals []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.Intervals = intervals
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckDB pings the relational store and records latency + health.
func (h *HealthStatus) CheckDB(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.DBOK = err == nil
	h.DBLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency
// may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if db != nil {
			h.CheckDB(probeCtx, db)
		}
	}

	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The database is required; Redis
// only degrades the service because every Redis path has a bypass.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case !h.DBOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case !h.RedisConnected:
		overallStatus = "degraded"
	}

	pollAge := ""
	if !h.LastPollAt.IsZero() {
		pollAge = time.Since(h.LastPollAt).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string   `json:"status"`
		Uptime         string   `json:"uptime"`
		RedisConnected bool     `json:"redis_connected"`
		RedisLatencyMs float64  `json:"redis_latency_ms"`
		DBOK           bool     `json:"db_ok"`
		DBLatencyMs    float64  `json:"db_latency_ms"`
		LastPollAt     string   `json:"last_poll_at,omitempty"`
		PollAge        string   `json:"poll_age,omitempty"`
		Symbols        []string `json:"symbols,omitempty"`
		Intervals      []string `json:"intervals,omitempty"`
		LastCheckAt    string   `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		DBOK:           h.DBOK,
		DBLatencyMs:    h.DBLatencyMs,
		PollAge:        pollAge,
		Symbols:        h.Symbols,
		Intervals:      h.Intervals,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastPollAt.IsZero() {
		status.LastPollAt = h.LastPollAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
