package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Spectavi/spectr/internal/scanner"
	"github.com/Spectavi/spectr/internal/strategy"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Watchlist and strategy
	Symbols     string // comma-separated, e.g. "AAPL,TSLA,BTCUSD"
	Strategy    string
	TradeAmount float64
	AutoTrading bool

	// Loop tuning
	PollIntervalSec   int
	ScanIntervalSec   int
	EquityIntervalSec int
	EquityWindowMin   int
	Workers           int

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	LogLevel      string

	// Strategy parameters
	StopLossPct   float64
	TakeProfitPct float64
	TrailingStop  bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Symbols:     getEnv("SPECTR_SYMBOLS", "AAPL"),
		Strategy:    getEnv("SPECTR_STRATEGY", "CustomStrategy"),
		TradeAmount: getFloat("SPECTR_TRADE_AMOUNT", 1000),
		AutoTrading: getBool("SPECTR_AUTO_TRADING", false),

		PollIntervalSec:   getInt("SPECTR_POLL_INTERVAL_SEC", 60),
		ScanIntervalSec:   getInt("SPECTR_SCAN_INTERVAL_SEC", 60),
		EquityIntervalSec: getInt("SPECTR_EQUITY_INTERVAL_SEC", 30),
		EquityWindowMin:   getInt("SPECTR_EQUITY_WINDOW_MIN", 240),
		Workers:           getInt("SPECTR_WORKERS", 4),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/spectr.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		StopLossPct:   getFloat("SPECTR_STOP_LOSS_PCT", 0.01),
		TakeProfitPct: getFloat("SPECTR_TAKE_PROFIT_PCT", 0.05),
		TrailingStop:  getBool("SPECTR_TRAILING_STOP", true),
	}
}

// ParseSymbols splits the Symbols string into uppercased symbols.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// StrategyConfig builds the strategy parameters from defaults plus any
// environment overrides.
func (c *Config) StrategyConfig() strategy.Config {
	sc := strategy.DefaultConfig()
	sc.StopLossPct = c.StopLossPct
	sc.TakeProfitPct = c.TakeProfitPct
	sc.TrailingStop = c.TrailingStop
	return sc
}

// Orchestrator holds the live-loop wiring derived from Config.
type Orchestrator struct {
	Symbols        []string
	Strategy       string
	StrategyConfig strategy.Config

	PollInterval   time.Duration
	ScanInterval   time.Duration
	EquityInterval time.Duration
	EquityWindow   time.Duration
	BarInterval    time.Duration
	Workers        int

	TradeAmount float64
	AutoTrading bool

	Scanner scanner.Config
}

// OrchestratorConfig assembles the orchestrator settings.
func (c *Config) OrchestratorConfig() Orchestrator {
	return Orchestrator{
		Symbols:        c.ParseSymbols(),
		Strategy:       c.Strategy,
		StrategyConfig: c.StrategyConfig(),

		PollInterval:   time.Duration(c.PollIntervalSec) * time.Second,
		ScanInterval:   time.Duration(c.ScanIntervalSec) * time.Second,
		EquityInterval: time.Duration(c.EquityIntervalSec) * time.Second,
		EquityWindow:   time.Duration(c.EquityWindowMin) * time.Minute,
		Workers:        c.Workers,

		TradeAmount: c.TradeAmount,
		AutoTrading: c.AutoTrading,

		Scanner: scanner.DefaultConfig(),
	}
}

// ApplyDefaults fills any zero-valued interval or sizing field.
func (o *Orchestrator) ApplyDefaults() {
	if o.Strategy == "" {
		o.Strategy = "CustomStrategy"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 60 * time.Second
	}
	if o.ScanInterval <= 0 {
		o.ScanInterval = 60 * time.Second
	}
	if o.EquityInterval <= 0 {
		o.EquityInterval = 30 * time.Second
	}
	if o.EquityWindow <= 0 {
		o.EquityWindow = 4 * time.Hour
	}
	if o.BarInterval <= 0 {
		o.BarInterval = time.Minute
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Scanner.Limit == 0 {
		o.Scanner = scanner.DefaultConfig()
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %f", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
