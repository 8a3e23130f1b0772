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

// Metrics holds all Prometheus metrics for the trading assistant.
type Metrics struct {
	PollCycles  prometheus.Counter
	PollErrors  *prometheus.CounterVec // labels: symbol
	PollDur     prometheus.Histogram
	QuoteAge    prometheus.Gauge
	FramesBuilt prometheus.Counter

	// Strategy engine
	SignalsDetected *prometheus.CounterVec // labels: strategy, side
	SignalsDropped  *prometheus.CounterVec // labels: reason
	StrategyPanics  prometheus.Counter

	// Order pipeline
	OrdersSubmitted *prometheus.CounterVec // labels: side, type
	OrdersCanceled  prometheus.Counter
	OrderRetries    prometheus.Counter
	OrderErrors     prometheus.Counter

	// Scanner
	ScanDur        prometheus.Histogram
	ScanCandidates prometheus.Gauge

	// Portfolio tracking
	EquityValue  prometheus.Gauge
	EquityPoints prometheus.Counter

	// Cache
	CacheErrors prometheus.Counter

	// Worker pool
	WorkersBusy prometheus.Gauge
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		PollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_poll_cycles_total",
			Help: "Completed symbol poll cycles",
		}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectr_poll_errors_total",
			Help: "Per-symbol fetch or evaluation errors",
		}, []string{"symbol"}),
		PollDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spectr_poll_duration_seconds",
			Help:    "Wall time of one full poll cycle",
			Buckets: prometheus.DefBuckets,
		}),
		QuoteAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spectr_quote_age_seconds",
			Help: "Age of the oldest quote held in memory",
		}),
		FramesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_frames_built_total",
			Help: "Indicator frames computed",
		}),

		SignalsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectr_signals_detected_total",
			Help: "Signals returned by strategies (by strategy and side)",
		}, []string{"strategy", "side"}),
		SignalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectr_signals_dropped_total",
			Help: "Signals discarded before order submission (by reason)",
		}, []string{"reason"}),
		StrategyPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_strategy_panics_total",
			Help: "Strategy evaluations recovered from panic",
		}),

		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectr_orders_submitted_total",
			Help: "Orders accepted by the broker (by side and type)",
		}, []string{"side", "type"}),
		OrdersCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_orders_canceled_total",
			Help: "Pending orders canceled by the user",
		}),
		OrderRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_order_retries_total",
			Help: "Fractional-rejection retries with floored quantity",
		}),
		OrderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_order_errors_total",
			Help: "Order submissions rejected by the broker",
		}),

		ScanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spectr_scan_duration_seconds",
			Help:    "Wall time of one scanner sweep",
			Buckets: prometheus.DefBuckets,
		}),
		ScanCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spectr_scan_candidates",
			Help: "Candidates that passed filters in the latest sweep",
		}),

		EquityValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spectr_equity_value",
			Help: "Latest sampled portfolio value",
		}),
		EquityPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_equity_points_total",
			Help: "Equity samples appended to the rolling window",
		}),

		CacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spectr_cache_errors_total",
			Help: "Best-effort cache operations that failed",
		}),

		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spectr_workers_busy",
			Help: "Worker goroutines currently fetching a symbol",
		}),
	}

	prometheus.MustRegister(
		m.PollCycles,
		m.PollErrors,
		m.PollDur,
		m.QuoteAge,
		m.FramesBuilt,
		m.SignalsDetected,
		m.SignalsDropped,
		m.StrategyPanics,
		m.OrdersSubmitted,
		m.OrdersCanceled,
		m.OrderRetries,
		m.OrderErrors,
		m.ScanDur,
		m.ScanCandidates,
		m.EquityValue,
		m.EquityPoints,
		m.CacheErrors,
		m.WorkersBusy,
	)

	return m
}

// HealthStatus represents the assistant's health.
type HealthStatus struct {
	mu sync.RWMutex

	DataOK         bool      `json:"data_ok"`
	BrokerOK       bool      `json:"broker_ok"`
	LastPollTime   time.Time `json:"last_poll_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	AutoTrading    bool      `json:"auto_trading"`
	Strategy       string    `json:"strategy"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetDataOK(v bool) {
	h.mu.Lock()
	h.DataOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetBrokerOK(v bool) {
	h.mu.Lock()
	h.BrokerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPollTime(t time.Time) {
	h.mu.Lock()
	h.LastPollTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetAutoTrading(v bool) {
	h.mu.Lock()
	h.AutoTrading = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStrategy(name string) {
	h.mu.Lock()
	h.Strategy = name
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

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
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

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.DataOK || !h.BrokerOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.DataOK && !h.BrokerOK {
		overallStatus = "unhealthy"
	}

	// Poll age
	pollAge := ""
	if !h.LastPollTime.IsZero() {
		pollAge = time.Since(h.LastPollTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		DataOK          bool    `json:"data_ok"`
		BrokerOK        bool    `json:"broker_ok"`
		LastPollTime    string  `json:"last_poll_time"`
		PollAge         string  `json:"poll_age"`
		AutoTrading     bool    `json:"auto_trading"`
		Strategy        string  `json:"strategy"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		DataOK:          h.DataOK,
		BrokerOK:        h.BrokerOK,
		LastPollTime:    h.LastPollTime.Format(time.RFC3339),
		PollAge:         pollAge,
		AutoTrading:     h.AutoTrading,
		Strategy:        h.Strategy,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
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
