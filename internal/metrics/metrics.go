// Package metrics exposes Prometheus metrics and a /healthz endpoint
// for the ledger service.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"papertradingv1/internal/ledger"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	TradesExecuted *prometheus.CounterVec // labels: side
	TradesRejected *prometheus.CounterVec // labels: reason

	PriceBatchesTotal prometheus.Counter
	PriceBatchesDrop  prometheus.Counter
	PositionsRepriced prometheus.Counter
	FeedReconnects    prometheus.Counter

	Equity        prometheus.Gauge
	OpenPositions prometheus.Gauge
	ModeLive      prometheus.Gauge // 0=demo, 1=live

	SnapshotSaveFailures prometheus.Counter
	SnapshotSaveDur      prometheus.Histogram
	PortfolioResets      prometheus.Counter
	StreamClients        prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_trades_executed_total",
			Help: "Trades applied to the paper portfolio (by side)",
		}, []string{"side"}),
		TradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgerd_trades_rejected_total",
			Help: "Trade requests rejected by validation (by reason)",
		}, []string{"reason"}),

		PriceBatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_price_batches_total",
			Help: "Quote batches received from the price feed",
		}),
		PriceBatchesDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_price_batches_dropped_total",
			Help: "Quote batches dropped because the apply channel was full",
		}),
		PositionsRepriced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_positions_repriced_total",
			Help: "Open positions updated by price sweeps",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_feed_reconnects_total",
			Help: "Price feed WebSocket reconnection attempts",
		}),

		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerd_equity",
			Help: "Current equity (cash + market value of open positions)",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerd_open_positions",
			Help: "Number of open positions",
		}),
		ModeLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerd_mode_live",
			Help: "Trading mode (0=demo, 1=live)",
		}),

		SnapshotSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_snapshot_save_failures_total",
			Help: "Background snapshot saves that failed",
		}),
		SnapshotSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledgerd_snapshot_save_duration_seconds",
			Help:    "Time spent writing one snapshot to the store",
			Buckets: prometheus.DefBuckets,
		}),
		PortfolioResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgerd_portfolio_resets_total",
			Help: "Portfolio resets",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledgerd_stream_clients",
			Help: "Connected WebSocket snapshot-stream clients",
		}),
	}

	prometheus.MustRegister(
		m.TradesExecuted,
		m.TradesRejected,
		m.PriceBatchesTotal,
		m.PriceBatchesDrop,
		m.PositionsRepriced,
		m.FeedReconnects,
		m.Equity,
		m.OpenPositions,
		m.ModeLive,
		m.SnapshotSaveFailures,
		m.SnapshotSaveDur,
		m.PortfolioResets,
		m.StreamClients,
	)

	return m
}

// RejectReason maps a trade error to a stable metric label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrModeMismatch):
		return "mode_mismatch"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ledger.ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ledger.ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrInsufficientPosition):
		return "insufficient_position"
	case errors.Is(err, ledger.ErrUnknownSymbol):
		return "unknown_symbol"
	default:
		return "other"
	}
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected bool      `json:"feed_connected"`
	LastQuoteTime time.Time `json:"last_quote_time"`
	StoreOK       bool      `json:"store_ok"`

	StoreLatencyMs float64   `json:"store_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StoreOK:   true,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastQuoteTime(t time.Time) {
	h.mu.Lock()
	h.LastQuoteTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	h.record(err, time.Since(start))
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	h.record(err, time.Since(start))
}

func (h *HealthStatus) record(err error, latency time.Duration) {
	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic store probes. Pass nil for the
// backend not in use.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.StoreOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	quoteAge := ""
	if !h.LastQuoteTime.IsZero() {
		quoteAge = time.Since(h.LastQuoteTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		FeedConnected  bool    `json:"feed_connected"`
		LastQuoteTime  string  `json:"last_quote_time"`
		QuoteAge       string  `json:"quote_age"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:  h.FeedConnected,
		LastQuoteTime:  h.LastQuoteTime.Format(time.RFC3339),
		QuoteAge:       quoteAge,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
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
			Addr:    addr,
			Handler: mux,
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
