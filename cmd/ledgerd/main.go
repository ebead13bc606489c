package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertradingv1/config"
	"papertradingv1/internal/api"
	"papertradingv1/internal/auth"
	"papertradingv1/internal/ledger"
	"papertradingv1/internal/logger"
	"papertradingv1/internal/metrics"
	"papertradingv1/internal/model"
	"papertradingv1/internal/pricefeed"
	"papertradingv1/internal/store"
	redisstore "papertradingv1/internal/store/redis"
	sqlitestore "papertradingv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ledgerd] starting...")

	cfg := config.Load()
	slogger := logger.Init("ledgerd", slog.LevelInfo)
	slogger.Info("configuration loaded",
		"api_addr", cfg.APIAddr,
		"metrics_addr", cfg.MetricsAddr,
		"store_backend", cfg.StoreBackend,
		"initial_capital", cfg.InitialCapital.String(),
		"price_feed", cfg.PriceFeedURL != "",
		"live_arming", cfg.LiveModeTOTPSecret != "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Persistence backend ----
	var (
		st        store.Store
		rdbClient *goredis.Client
		sqlDB     *sql.DB
	)
	switch cfg.StoreBackend {
	case "sqlite":
		s, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[ledgerd] open sqlite store: %v", err)
		}
		st = s
		sqlDB = s.DB()
	case "redis":
		s, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Fatalf("[ledgerd] connect redis store: %v", err)
		}
		st = s
		rdbClient = s.Client()
	case "none":
		log.Println("[ledgerd] persistence disabled, ledger is memory-only")
	default:
		log.Fatalf("[ledgerd] unknown STORE_BACKEND %q (want sqlite, redis, or none)", cfg.StoreBackend)
	}
	health.StartLivenessChecker(ctx, rdbClient, sqlDB, 15*time.Second)

	// ---- Ledger ----
	led := ledger.New(ledger.Config{InitialCapital: cfg.InitialCapital}, st)
	if st != nil {
		loadCtx, loadCancel := context.WithTimeout(ctx, 5*time.Second)
		snap, err := st.Load(loadCtx)
		loadCancel()
		switch {
		case err != nil:
			log.Printf("[ledgerd] WARNING: snapshot load failed, starting fresh: %v", err)
		case snap == nil:
			log.Println("[ledgerd] no snapshot found, starting fresh")
		default:
			if err := led.Restore(snap); err != nil {
				log.Printf("[ledgerd] WARNING: ignoring snapshot: %v", err)
			}
		}
	}

	// ---- Snapshot stream hub ----
	hub := api.NewHub()
	hub.OnClientChange = func(n int) { prom.StreamClients.Set(float64(n)) }
	go hub.Run()

	// ---- Wire ledger hooks to metrics + stream ----
	led.OnMutation = func(p model.PaperPortfolio) {
		hub.BroadcastPortfolio(p)
		prom.Equity.Set(p.Equity().InexactFloat64())
		prom.OpenPositions.Set(float64(len(p.Positions)))
	}
	led.OnSaveError = func(error) { prom.SnapshotSaveFailures.Inc() }
	led.OnSaveDuration = func(d time.Duration) { prom.SnapshotSaveDur.Observe(d.Seconds()) }
	led.OnMutation(led.Portfolio()) // prime the gauges and the hub

	setModeGauge := func(m model.Mode) {
		if m == model.ModeLive {
			prom.ModeLive.Set(1)
		} else {
			prom.ModeLive.Set(0)
		}
	}
	setModeGauge(led.Mode()) // restored snapshot may already be live

	// ---- API server ----
	guard := auth.NewLiveArmGuard(cfg.LiveModeTOTPSecret)
	apiSrv := api.NewServer(cfg.APIAddr, led, guard, hub)
	apiSrv.OnExecute = func(t model.PaperTrade) {
		prom.TradesExecuted.WithLabelValues(string(t.Side)).Inc()
	}
	apiSrv.OnReject = func(err error) {
		prom.TradesRejected.WithLabelValues(metrics.RejectReason(err)).Inc()
	}
	apiSrv.OnReset = prom.PortfolioResets.Inc
	apiSrv.OnModeChange = setModeGauge
	apiSrv.Start()

	// ---- Price feed ----
	if cfg.PriceFeedURL != "" {
		batchCh := make(chan pricefeed.QuoteBatch, 100)
		ing := pricefeed.New(cfg.PriceFeedURL)
		ing.OnReconnect = func() {
			prom.FeedReconnects.Inc()
			health.SetFeedConnected(false)
		}
		ing.OnDropped = prom.PriceBatchesDrop.Inc
		ing.OnBatch = func() {
			prom.PriceBatchesTotal.Inc()
			health.SetFeedConnected(true)
			health.SetLastQuoteTime(time.Now())
		}
		go ing.Start(ctx, batchCh)
		go pricefeed.Run(ctx, batchCh, func(b pricefeed.QuoteBatch) {
			n := led.ApplyPriceUpdates(b)
			prom.PositionsRepriced.Add(float64(n))
		})
	} else {
		log.Println("[ledgerd] no PRICE_FEED_URL set, feed ingest disabled")
	}

	// ---- Wait for shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[ledgerd] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Stop(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if st != nil {
		if err := led.SaveNow(shutdownCtx); err != nil {
			log.Printf("[ledgerd] WARNING: final snapshot save failed: %v", err)
		}
		st.Close()
	}
	log.Println("[ledgerd] bye")
}
