package strategy

import (
	"testing"

	"github.com/Spectavi/spectr/internal/model"
)

func trailingCfg() Config {
	cfg := DefaultConfig()
	cfg.StopLossPct = 0.05
	cfg.TakeProfitPct = 0.2
	cfg.TrailingStop = true
	return cfg
}

func TestStopBook_TrailingLong(t *testing.T) {
	book := NewStopBook()
	pos := &model.Position{Symbol: "ABC", Qty: 10, AvgPrice: 10.0}
	cfg := trailingCfg()

	if sig := book.Check("ABC", 10.0, pos, cfg); sig != nil {
		t.Fatalf("first check at entry price should not exit, got %+v", sig)
	}
	if sig := book.Check("ABC", 11.0, pos, cfg); sig != nil {
		t.Fatalf("rising price should only ratchet the watermark, got %+v", sig)
	}
	sig := book.Check("ABC", 10.2, pos, cfg)
	if sig == nil {
		t.Fatal("10.2 < 11.0*0.95 should trigger the trailing stop")
	}
	if sig.Side != model.SideSell || sig.Reason != "Trailing stop loss" {
		t.Errorf("got side=%s reason=%q, want sell / Trailing stop loss", sig.Side, sig.Reason)
	}
}

func TestStopBook_TrailingShort(t *testing.T) {
	book := NewStopBook()
	pos := &model.Position{Symbol: "ABC", Qty: -10, AvgPrice: 10.0}
	cfg := trailingCfg()

	if sig := book.Check("ABC", 10.0, pos, cfg); sig != nil {
		t.Fatalf("unexpected exit at entry: %+v", sig)
	}
	if sig := book.Check("ABC", 9.0, pos, cfg); sig != nil {
		t.Fatalf("favorable move should not exit a short: %+v", sig)
	}
	sig := book.Check("ABC", 9.6, pos, cfg)
	if sig == nil {
		t.Fatal("9.6 > 9.0*1.05 should trigger the trailing stop")
	}
	if sig.Side != model.SideBuy || sig.Reason != "Trailing stop loss" {
		t.Errorf("got side=%s reason=%q, want buy / Trailing stop loss", sig.Side, sig.Reason)
	}
}

func TestStopBook_ClearedWhenFlat(t *testing.T) {
	book := NewStopBook()
	cfg := trailingCfg()

	long := &model.Position{Symbol: "ABC", Qty: 10, AvgPrice: 10.0}
	book.Check("ABC", 10.0, long, cfg)
	book.Check("ABC", 12.0, long, cfg) // watermark 12.0

	// Position closed: state must vanish entirely.
	book.Check("ABC", 12.0, &model.Position{Symbol: "ABC"}, cfg)
	if _, ok := book.State("ABC"); ok {
		t.Fatal("flat position should clear trailing state")
	}

	// A fresh position reseeds from the new entry, not the old watermark.
	fresh := &model.Position{Symbol: "ABC", Qty: 5, AvgPrice: 8.0}
	if sig := book.Check("ABC", 8.0, fresh, cfg); sig != nil {
		t.Fatalf("fresh position must not inherit the old watermark: %+v", sig)
	}
	st, ok := book.State("ABC")
	if !ok || st.HighWater != 8.0 {
		t.Errorf("watermark = %v, want reseed at 8.0", st.HighWater)
	}
}

func TestStopBook_FixedStopAndTarget(t *testing.T) {
	cfg := trailingCfg()
	cfg.TrailingStop = false
	pos := &model.Position{Symbol: "ABC", Qty: 10, AvgPrice: 10.0}

	book := NewStopBook()
	sig := book.Check("ABC", 9.5, pos, cfg)
	if sig == nil || sig.Reason != "Stop loss hit" {
		t.Errorf("9.5 <= 10*0.95 should hit the fixed stop, got %+v", sig)
	}

	book = NewStopBook()
	sig = book.Check("ABC", 12.1, pos, cfg)
	if sig == nil || sig.Reason != "Take profit hit" || sig.Side != model.SideSell {
		t.Errorf("12.1 >= 10*1.2 should hit the target, got %+v", sig)
	}

	book = NewStopBook()
	if sig = book.Check("ABC", 10.5, pos, cfg); sig != nil {
		t.Errorf("price inside the band should not exit: %+v", sig)
	}
}

func TestStopBook_IndependentBooks(t *testing.T) {
	cfg := trailingCfg()
	pos := &model.Position{Symbol: "ABC", Qty: 10, AvgPrice: 10.0}

	live := NewStopBook()
	live.Check("ABC", 11.0, pos, cfg)

	backtest := NewStopBook()
	if _, ok := backtest.State("ABC"); ok {
		t.Fatal("separate books must not share state")
	}
}
