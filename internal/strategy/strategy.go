// Package strategy provides the signal-detection engine.
//
// A Strategy inspects an indicator frame plus the current position and emits
// a buy/sell Signal, or nil to skip. The same DetectSignal contract is
// invoked from both the backtest simulator and the live orchestrator, so a
// strategy must be pure given its inputs — the only shared mutable state is
// the trailing-stop book, which the caller owns and hands in at
// construction.
package strategy

import (
	"fmt"
	"sort"

	"github.com/Spectavi/spectr/internal/indicator"
	"github.com/Spectavi/spectr/internal/model"
)

// Config is a named set of numeric strategy parameters. It is passed
// uniformly to the simulator and the orchestrator; each strategy reads only
// the fields it cares about.
type Config struct {
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	TrailingStop  bool    `json:"trailing_stop"`

	// MACD / Bollinger (CustomStrategy)
	MACDFast   int     `json:"macd_fast"`
	MACDSlow   int     `json:"macd_slow"`
	MACDSignal int     `json:"macd_signal"`
	BBPeriod   int     `json:"bb_period"`
	BBDev      float64 `json:"bb_dev"`

	// Moving-average oscillators
	FastPeriod int `json:"fast_period"`
	SlowPeriod int `json:"slow_period"`

	// DualThrust session breakout
	K         float64 `json:"k"`
	Window    int     `json:"window"`
	StartTime string  `json:"start_time"` // "HH:MM", bar-timestamp local time
	EndTime   string  `json:"end_time"`
}

// DefaultConfig returns the parameter set used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		StopLossPct:   0.01,
		TakeProfitPct: 0.05,
		TrailingStop:  true,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		BBPeriod:      20,
		BBDev:         2.0,
		FastPeriod:    12,
		SlowPeriod:    26,
		K:             0.5,
		Window:        4,
		StartTime:     "09:45",
		EndTime:       "15:45",
	}
}

// Strategy is the contract every trading strategy implements.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// DetectSignal inspects the frame's last bars and returns a signal, or
	// nil when no condition fires. pending carries the sides of any
	// outstanding orders for the symbol so strategies can suppress
	// duplicates; it is nil in backtests.
	DetectSignal(frame *indicator.Frame, symbol string, pos *model.Position, pending []model.Side) *model.Signal

	// RequiredIndicators declares the indicator columns DetectSignal reads.
	RequiredIndicators() []indicator.Spec

	// Lookback returns the minimum number of bars a frame should span for
	// the evaluation to be meaningful.
	Lookback() int
}

// Constructor builds a strategy from its config and the caller-owned stop
// book.
type Constructor func(cfg Config, stops *StopBook) Strategy

var registry = map[string]Constructor{}

// Register adds a strategy constructor under name. Called from init funcs;
// panics on duplicates.
func Register(name string, ctor Constructor) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("strategy: duplicate registration of %q", name))
	}
	registry[name] = ctor
}

// New constructs the named strategy.
func New(name string, cfg Config, stops *StopBook) (Strategy, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q not found (known: %v)", name, Names())
	}
	return ctor(cfg, stops), nil
}

// Names lists all registered strategies, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// hasPendingSide reports whether an order with the given side is already
// outstanding.
func hasPendingSide(pending []model.Side, side model.Side) bool {
	for _, p := range pending {
		if p == side {
			return true
		}
	}
	return false
}
