package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cryptodash/config"
	"cryptodash/internal/alerts"
	"cryptodash/internal/bootstrap"
	"cryptodash/internal/breaker"
	"cryptodash/internal/indengine"
	"cryptodash/internal/metrics"
	"cryptodash/internal/notification"
	redisstore "cryptodash/internal/store/redis"
	"cryptodash/internal/store/sqlstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[indengine] %v", err)
	}
	bootstrap.Logger("indengine", cfg)

	indCfg, err := bootstrap.IndicatorConfig(cfg)
	if err != nil {
		log.Fatalf("[indengine] %v", err)
	}
	svcCfg := indengine.ConfigFrom(cfg, indCfg)
	if err := svcCfg.Validate(); err != nil {
		log.Fatalf("[indengine] invalid config: %v", err)
	}
	log.Printf("[indengine] watchlist: %v x %v, poll every %s", svcCfg.Symbols, svcCfg.Intervals, svcCfg.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()

	rdb := bootstrap.Redis(ctx, cfg)
	if rdb == nil {
		log.Fatalf("[indengine] redis is required to publish indicator updates")
	}
	defer rdb.Close()

	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		log.Fatalf("[indengine] %v", err)
	}
	defer store.Close()

	market := bootstrap.MarketData(cfg, rdb, bootstrap.Upstreams(cfg, bootstrap.Binance(cfg), m), m)

	publishBreaker := breaker.New("redis-publish", 5, 10*time.Second)
	publisher := redisstore.NewBufferedPublisher(ctx, redisstore.NewPublisher(rdb, 0), publishBreaker)

	notifier := notification.FromConfig(cfg)
	log.Printf("[indengine] alert channels: %v", notifier.Channels())
	evaluator := alerts.NewEvaluator(store, market, notifier, m, cfg.AlertInterval)

	svc := indengine.New(svcCfg, indengine.Deps{
		Candles:   market,
		Publisher: publisher,
		Metrics:   m,
		Health:    health,
		Alerts:    evaluator,
	})

	go svc.RunConfigSubscriber(ctx, rdb)
	health.StartLivenessChecker(ctx, rdb, store.DB().DB, 10*time.Second)

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[indengine] control server listening on %s", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[indengine] control server error: %v", err)
		}
	}()

	runErr := svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if n := publisher.PendingCount(); n > 0 {
		log.Printf("[indengine] %d buffered updates dropped at shutdown", n)
	}
	if runErr != nil {
		log.Fatalf("[indengine] fatal: %v", runErr)
	}
}
