// cmd/spectr — Semi-automated trading assistant.
//
// Polls market data for a watchlist, runs the configured strategy on every
// cycle, scans the market for fresh candidates, and either queues signals
// for manual confirmation or submits orders automatically.
//
// Providers:
//
//	SPECTR_FEED_URL unset  — fully simulated data + paper broker
//	SPECTR_FEED_URL set    — quotes streamed from a quotesim WebSocket
//	                         (bars and scanner data stay simulated)
//
// See config.Load for the full list of environment variables.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Spectavi/spectr/config"
	"github.com/Spectavi/spectr/internal/api"
	"github.com/Spectavi/spectr/internal/cache"
	"github.com/Spectavi/spectr/internal/logger"
	"github.com/Spectavi/spectr/internal/metrics"
	"github.com/Spectavi/spectr/internal/model"
	"github.com/Spectavi/spectr/internal/notification"
	"github.com/Spectavi/spectr/internal/orchestrator"
	"github.com/Spectavi/spectr/internal/provider/sim"
	"github.com/Spectavi/spectr/internal/provider/wsfeed"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[spectr] starting...")

	// ---- Load config from env ----
	cfg := config.Load()
	lg := logger.Init("spectr", logger.ParseLevel(cfg.LogLevel))

	orchCfg := cfg.OrchestratorConfig()
	orchCfg.ApplyDefaults()
	log.Printf("[spectr] watchlist: %v strategy=%s auto=%v", orchCfg.Symbols, orchCfg.Strategy, orchCfg.AutoTrading)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetStrategy(orchCfg.Strategy)
	health.SetAutoTrading(orchCfg.AutoTrading)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Open the state cache: Redis when configured, else SQLite ----
	var store cache.Store
	if cfg.RedisAddr != "" {
		redisStore, err := cache.OpenRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[spectr] WARNING: redis init failed: %v (falling back to sqlite)", err)
		} else {
			store = redisStore
			health.SetRedisConnected(true)
			health.StartLivenessChecker(ctx, redisStore.Client(), nil, 10*time.Second)
			log.Println("[spectr] redis cache ready")
		}
	}
	if store == nil {
		os.MkdirAll("data", 0o755)
		sqlStore, err := cache.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[spectr] sqlite init failed: %v", err)
		}
		store = sqlStore
		health.SetSQLiteOK(true)
		health.StartLivenessChecker(ctx, nil, sqlStore.DB(), 10*time.Second)
		log.Println("[spectr] sqlite cache ready")
	}
	defer store.Close()

	// ---- Market data + paper broker ----
	simData := sim.NewData()
	var data model.DataProvider = simData

	if feedURL := os.Getenv("SPECTR_FEED_URL"); feedURL != "" {
		feed, err := wsfeed.New(wsfeed.Config{URL: feedURL}, simData)
		if err != nil {
			log.Fatalf("[spectr] wsfeed init failed: %v", err)
		}
		feed.OnReconnect = func() {
			health.SetDataOK(false)
		}
		go func() {
			if err := feed.Start(ctx); err != nil {
				log.Printf("[spectr] wsfeed error: %v", err)
			}
		}()
		data = feed
		log.Printf("[spectr] quote source: %s", feedURL)
	} else {
		log.Println("[spectr] quote source: simulated walk")
	}

	broker := sim.NewBroker(getFloat("SPECTR_PAPER_CASH", 100000))

	// ---- Orchestrator ----
	orch, err := orchestrator.New(orchCfg, data, broker, store, prom, health, lg)
	if err != nil {
		log.Fatalf("[spectr] orchestrator init failed: %v", err)
	}
	if n := notification.FromEnv(); n != nil {
		orch.Notify = n
		log.Println("[spectr] external notifications enabled")
	}

	// ---- Control API (signals, confirm/dismiss, snapshots) ----
	apiAddr := getEnvStr("SPECTR_API_ADDR", ":8080")
	apiSrv := &http.Server{
		Addr:    apiAddr,
		Handler: api.NewRouter(orch, orchCfg, time.Now()),
	}
	go func() {
		log.Printf("[spectr] control API listening on %s", apiAddr)
		if err := apiSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[spectr] api server error: %v", err)
		}
	}()

	done := make(chan error, 1)
	go func() {
		done <- orch.Run(ctx)
	}()

	log.Println("[spectr] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[spectr] ║  Spectr — Semi-Automated Trading Assistant               ║")
	log.Println("[spectr] ║                                                          ║")
	log.Println("[spectr] ║  [Poll] → [Strategy] → [Signals] → [Orders]              ║")
	log.Println("[spectr] ║  [Scanner] → [Candidates]   [Equity] → [Curve]           ║")
	log.Printf("[spectr] ║  Poll: %-8v Scan: %-8v Equity: %-8v         ║",
		orchCfg.PollInterval, orchCfg.ScanInterval, orchCfg.EquityInterval)
	log.Println("[spectr] ╚══════════════════════════════════════════════════════════╝")

	// ---- Wait for shutdown signal ----
	select {
	case <-sigCh:
		log.Println("[spectr] shutdown signal received, cleaning up...")
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Println("[spectr] WARNING: orchestrator did not stop in time")
		}
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			log.Printf("[spectr] orchestrator exited: %v", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Println("[spectr] shutdown complete.")
}

func getEnvStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("[spectr] invalid float for %s: %q, using %v", key, v, fallback)
	}
	return fallback
}
