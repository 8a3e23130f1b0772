package strategy

import (
	"sync"

	"github.com/Spectavi/spectr/internal/model"
)

// TrailingState is the per-symbol watermark for one open position. It lives
// from the first stop check after the position opens until the position goes
// flat.
type TrailingState struct {
	Entry     float64 // price the tracking was seeded from
	HighWater float64 // best price seen while long
	LowWater  float64 // best (lowest) price seen while short
	Dir       int     // 1 long, -1 short
}

// StopBook owns the trailing-stop state for a set of symbols. Each caller
// (the simulator or the orchestrator) creates its own book, so backtests and
// live runs never leak state into each other. The book is the one piece of
// mutable state shared across strategy evaluations, hence the lock:
// orchestrator workers may check stops for different symbols concurrently.
type StopBook struct {
	mu     sync.Mutex
	states map[string]*TrailingState
}

// NewStopBook returns an empty stop book.
func NewStopBook() *StopBook {
	return &StopBook{states: make(map[string]*TrailingState)}
}

// State returns a copy of the tracking state for symbol, if any.
func (b *StopBook) State(symbol string) (TrailingState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[symbol]
	if !ok {
		return TrailingState{}, false
	}
	return *st, true
}

// Check runs the stop-level state machine for one symbol at the current
// price and returns an exit signal when a stop or target level is breached.
//
// A flat position clears any stored state. A non-flat position seeds the
// watermark on first sight and ratchets it on every subsequent check. In
// trailing mode a long exits when price falls below high_water*(1-stop); a
// short exits when price rises above low_water*(1+stop). In fixed mode the
// levels are referenced to the entry price instead, and a take-profit level
// applies as well.
//
// When Check returns a signal, it takes priority: callers return it without
// evaluating indicator-based rules.
func (b *StopBook) Check(symbol string, price float64, pos *model.Position, cfg Config) *model.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pos.IsFlat() {
		delete(b.states, symbol)
		return nil
	}
	if price <= 0 {
		return nil
	}

	dir := pos.Direction()
	st, ok := b.states[symbol]
	if !ok || st.Dir != dir {
		entry := pos.AvgPrice
		if entry <= 0 {
			entry = price
		}
		st = &TrailingState{Entry: entry, HighWater: price, LowWater: price, Dir: dir}
		b.states[symbol] = st
	}
	if price > st.HighWater {
		st.HighWater = price
	}
	if price < st.LowWater {
		st.LowWater = price
	}

	if cfg.TrailingStop {
		if dir > 0 && price < st.HighWater*(1-cfg.StopLossPct) {
			return &model.Signal{Symbol: symbol, Side: model.SideSell, Price: price, Reason: "Trailing stop loss"}
		}
		if dir < 0 && price > st.LowWater*(1+cfg.StopLossPct) {
			return &model.Signal{Symbol: symbol, Side: model.SideBuy, Price: price, Reason: "Trailing stop loss"}
		}
		return nil
	}

	// Fixed mode: levels referenced to the entry price.
	if dir > 0 {
		if price <= st.Entry*(1-cfg.StopLossPct) {
			return &model.Signal{Symbol: symbol, Side: model.SideSell, Price: price, Reason: "Stop loss hit"}
		}
		if cfg.TakeProfitPct > 0 && price >= st.Entry*(1+cfg.TakeProfitPct) {
			return &model.Signal{Symbol: symbol, Side: model.SideSell, Price: price, Reason: "Take profit hit"}
		}
		return nil
	}
	if price >= st.Entry*(1+cfg.StopLossPct) {
		return &model.Signal{Symbol: symbol, Side: model.SideBuy, Price: price, Reason: "Stop loss hit"}
	}
	if cfg.TakeProfitPct > 0 && price <= st.Entry*(1-cfg.TakeProfitPct) {
		return &model.Signal{Symbol: symbol, Side: model.SideBuy, Price: price, Reason: "Take profit hit"}
	}
	return nil
}
