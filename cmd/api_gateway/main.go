package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"cryptodash/config"
	"cryptodash/internal/bootstrap"
	"cryptodash/internal/gateway"
	"cryptodash/internal/llm"
	"cryptodash/internal/metrics"
	"cryptodash/internal/notification"
	"cryptodash/internal/secret"
	redisstore "cryptodash/internal/store/redis"
	"cryptodash/internal/store/sqlstore"
	"cryptodash/internal/trading"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[api_gateway] %v", err)
	}
	logger := bootstrap.Logger("api_gateway", cfg)
	logger.Info("starting", "addr", cfg.HTTPAddr, "db", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()

	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		log.Fatalf("[api_gateway] %v", err)
	}
	defer store.Close()

	rdb := bootstrap.Redis(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}
	bn := bootstrap.Binance(cfg)
	market := bootstrap.MarketData(cfg, rdb, bootstrap.Upstreams(cfg, bn, m), m)

	// ── Trading ──
	box, err := secret.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("[api_gateway] %v", err)
	}
	live := trading.NewLiveExecutor(store, store, box, bn, trading.LiveConfig{
		MainnetURL: cfg.BinanceBaseURL,
		TestnetURL: cfg.BinanceTestnetURL,
		Metrics:    m,
	})
	paper := trading.NewPaperExecutor(store, trading.TickerPrices{Source: market}, trading.PaperConfig{
		InitialUSDT: cfg.PaperInitialUSDT,
		SlippageBps: cfg.PaperSlippageBps,
		Metrics:     m,
	})
	if err := paper.Init(ctx); err != nil {
		log.Fatalf("[api_gateway] paper account init: %v", err)
	}

	var analyst *llm.Analyst
	if cfg.LLMProvider != "" {
		completer, err := llm.New(llm.Config{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.LLMAPIKey,
			Model:    cfg.LLMModel,
			BaseURL:  cfg.LLMBaseURL,
		})
		if err != nil {
			log.Fatalf("[api_gateway] %v", err)
		}
		analyst = llm.NewAnalyst(completer, cfg.LLMTemperature)
		logger.Info("market analysis enabled", "provider", cfg.LLMProvider)
	}

	notifier := notification.FromConfig(cfg)
	logger.Info("notification channels", "channels", notifier.Channels())

	// ── WebSocket hub and indicator config ──
	var (
		snapshots gateway.SnapshotReader
		cmdable   goredis.Cmdable
	)
	if rdb != nil {
		snapshots = redisstore.NewPublisher(rdb, 0)
		cmdable = rdb
	}
	hub := gateway.NewHub(snapshots, m)

	indCfg, err := bootstrap.IndicatorConfig(cfg)
	if err != nil {
		log.Fatalf("[api_gateway] %v", err)
	}
	indicators := gateway.NewConfigStore(hub, cmdable, indCfg)
	indicators.Load(ctx)

	api := gateway.NewAPI(gateway.Deps{
		Market:     market,
		Alerts:     store,
		Ledger:     store,
		Live:       live,
		Paper:      paper,
		Analyst:    analyst,
		Notifier:   notifier,
		Hub:        hub,
		Indicators: indicators,
		Metrics:    m,
		Health:     health,
	})

	health.StartLivenessChecker(ctx, rdb, store.DB().DB, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if rdb != nil {
		g.Go(func() error {
			hub.Run(gctx, redisstore.NewSubscriber(rdb))
			return nil
		})
	} else {
		logger.Warn("no redis: live indicator updates are disabled")
	}
	g.Go(func() error {
		hub.StartMetricsBroadcast(gctx, 2*time.Second)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		metricsSrv.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("gateway stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
